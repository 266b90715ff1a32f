// Package websocket hosts the socket.io message surface for the sync
// engine: join-canvas, canvas-update, canvas-awareness, leave-canvas,
// and disconnect cleanup.
package websocket

import (
	"context"
	"errors"
	"io"
	"reflect"
	"time"

	"canvas-sync/sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// attachTimeout bounds history hydration on join-canvas so a stalled
// store cannot hold a connection handler forever.
const attachTimeout = 10 * time.Second

// canvasRoom is the socket.io room grouping all sessions attached to a
// canvas.
func canvasRoom(canvasID string) socketio.Room {
	return socketio.Room("canvas:" + canvasID)
}

// broadcaster adapts the socket.io server to the engine's Transport
// contract. Sender exclusion relies on every socket being a member of
// its own id room.
type broadcaster struct {
	srv *socketio.Server
}

func (b *broadcaster) Broadcast(canvasID, event string, payload any, exceptSessionID string) {
	op := b.srv.In(canvasRoom(canvasID))
	if exceptSessionID != "" {
		op = op.Except(socketio.Room(exceptSessionID))
	}
	if err := op.Emit(event, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"canvas_id": canvasID,
			"event":     event,
		}).WithError(err).Warn("Broadcast failed")
	}
}

// SetupSocketIO builds the socket.io server, wires it as the engine's
// broadcast transport, and registers the collaboration event handlers.
func SetupSocketIO(engine *sync.Engine) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)
	engine.BindTransport(&broadcaster{srv: srv})

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		sessionID := string(socket.Id())
		log := logrus.WithField("session_id", sessionID)
		log.Debug("Session connected")

		socket.On("join-canvas", func(datas ...any) {
			roomID, canvasID, ok := parseJoinArgs(datas)
			if !ok {
				emitError(socket, "", "bad_request", "room id and canvas id are required")
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), attachTimeout)
			defer cancel()

			result, err := engine.Attach(ctx, roomID, canvasID, sessionID)
			if err != nil {
				log.WithFields(logrus.Fields{"canvas_id": canvasID, "room_id": roomID}).
					WithError(err).Error("Attach failed")
				emitError(socket, canvasID, "attach_failed", "failed to attach to canvas")
				return
			}

			socket.Join(canvasRoom(canvasID))
			log.WithField("canvas_id", canvasID).Debug("Session joined canvas")

			if err := socket.Emit("canvas-snapshot", map[string]any{
				"docKey":   result.DocKey,
				"snapshot": result.Snapshot,
			}); err != nil {
				log.WithError(err).Warn("Failed to send snapshot")
			}
		})

		socket.On("canvas-update", func(datas ...any) {
			canvasID, payload, ok := parseCanvasArgs(datas)
			if !ok {
				emitError(socket, "", "bad_request", "canvas id and update are required")
				return
			}
			update, ok := toBytes(payload)
			if !ok {
				emitError(socket, canvasID, "bad_request", "update must be binary")
				return
			}

			if err := engine.Update(canvasID, sessionID, update); err != nil {
				switch {
				case errors.Is(err, sync.ErrUnknownCanvas):
					// Tell the client to re-attach instead of silently creating
					// a document for a canvas that may no longer exist.
					emitError(socket, canvasID, "unknown_canvas", "canvas is not live, re-attach first")
				case errors.Is(err, sync.ErrMalformedUpdate):
					emitError(socket, canvasID, "malformed_update", "update was rejected")
				default:
					emitError(socket, canvasID, "update_failed", "failed to apply update")
				}
			}
		})

		socket.On("canvas-awareness", func(datas ...any) {
			canvasID, state, ok := parseCanvasArgs(datas)
			if !ok {
				return
			}
			if err := engine.Awareness(canvasID, sessionID, state); err != nil {
				if errors.Is(err, sync.ErrUnknownCanvas) {
					emitError(socket, canvasID, "unknown_canvas", "canvas is not live, re-attach first")
				}
			}
		})

		socket.On("leave-canvas", func(datas ...any) {
			ack, args := extractAck(datas)
			if len(args) == 0 {
				respondWithAck(socket, ack, "leave-canvas-ack", map[string]any{
					"status": "error",
					"error":  "canvas id is required",
				})
				return
			}
			canvasID, ok := args[0].(string)
			if !ok || canvasID == "" {
				respondWithAck(socket, ack, "leave-canvas-ack", map[string]any{
					"status": "error",
					"error":  "invalid canvas id",
				})
				return
			}
			socket.Leave(canvasRoom(canvasID))
			engine.Detach(canvasID, sessionID)
			log.WithField("canvas_id", canvasID).Debug("Session left canvas")

			respondWithAck(socket, ack, "leave-canvas-ack", map[string]any{
				"status":   "ok",
				"canvasId": canvasID,
			})
		})

		socket.On("disconnecting", func(datas ...any) {
			canvases := engine.Disconnect(sessionID)
			log.WithField("canvas_count", len(canvases)).Debug("Session disconnecting")
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

func parseJoinArgs(datas []any) (roomID, canvasID string, ok bool) {
	if len(datas) < 2 {
		return "", "", false
	}
	roomID, rok := datas[0].(string)
	canvasID, cok := datas[1].(string)
	if !rok || !cok || roomID == "" || canvasID == "" {
		return "", "", false
	}
	return roomID, canvasID, true
}

func parseCanvasArgs(datas []any) (canvasID string, payload any, ok bool) {
	if len(datas) < 2 {
		return "", nil, false
	}
	canvasID, cok := datas[0].(string)
	if !cok || canvasID == "" {
		return "", nil, false
	}
	return canvasID, datas[1], true
}

// toBytes accepts the binary shapes the socket.io parser may hand us.
// Binary attachments arrive reconstructed as buffer types implementing
// io.Reader, not as raw byte slices.
func toBytes(v any) ([]byte, bool) {
	switch data := v.(type) {
	case []byte:
		return data, true
	case string:
		return []byte(data), true
	case io.Reader:
		buf, err := io.ReadAll(data)
		if err != nil {
			return nil, false
		}
		return buf, true
	default:
		return nil, false
	}
}

// ackInvoker forwards a result to the client's ack callback when the
// event carried one.
type ackInvoker func(payload map[string]any)

// extractAck splits a trailing ack callback off the event arguments.
func extractAck(datas []any) (ackInvoker, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	ack := wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

// wrapAck adapts whatever callback shape the socket.io parser attached.
func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}
	value := reflect.ValueOf(candidate)
	if value.Kind() != reflect.Func {
		return nil
	}
	typ := value.Type()
	return func(payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			in := typ.In(i)
			switch {
			case reflect.TypeOf(payload).AssignableTo(in):
				args[i] = reflect.ValueOf(payload)
			case in == reflect.TypeOf([]any(nil)):
				args[i] = reflect.ValueOf([]any{payload})
			default:
				args[i] = reflect.Zero(in)
			}
		}
		value.Call(args)
	}
}

// respondWithAck answers via the ack callback when present, and always
// emits the event so clients without an ack can still observe it.
func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any) {
	if ack != nil {
		ack(payload)
	}
	if err := socket.Emit(event, payload); err != nil {
		logrus.WithError(err).Warn("Failed to emit ack event")
	}
}

func emitError(socket *socketio.Socket, canvasID, code, message string) {
	payload := map[string]any{
		"code":  code,
		"error": message,
	}
	if canvasID != "" {
		payload["canvasId"] = canvasID
	}
	if err := socket.Emit("canvas-error", payload); err != nil {
		logrus.WithError(err).Warn("Failed to emit error event")
	}
}
