package canvases

import (
	"errors"
	"net/http"

	"canvas-sync/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// HandleList reports every live canvas with its attached session count.
func HandleList(engine *sync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := engine.ActiveCanvases()
		if infos == nil {
			infos = []sync.CanvasInfo{}
		}
		render.JSON(w, r, infos)
	}
}

// HandleSnapshot exports the current CRDT snapshot of a live canvas as
// raw bytes.
func HandleSnapshot(engine *sync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "id")
		if canvasID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Canvas id is required"})
			return
		}

		snapshot, err := engine.Snapshot(canvasID)
		if err != nil {
			if errors.Is(err, sync.ErrUnknownCanvas) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Canvas not found"})
				return
			}
			logrus.WithField("canvas_id", canvasID).WithError(err).Error("Failed to snapshot canvas")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to snapshot canvas"})
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(snapshot)
	}
}
