package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvas-sync/crdt/automerge"
	"canvas-sync/handlers/api/canvases"
	"canvas-sync/handlers/websocket"
	"canvas-sync/stores"
	syncengine "canvas-sync/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupRouter(engine *syncengine.Engine) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v2/canvases", func(r chi.Router) {
		r.Get("/", canvases.HandleList(engine))
		r.Get("/{id}/snapshot", canvases.HandleSnapshot(engine))
	})

	return r
}

func flushInterval() time.Duration {
	raw := os.Getenv("FLUSH_INTERVAL")
	if raw == "" {
		return 0
	}
	interval, err := time.ParseDuration(raw)
	if err != nil {
		logrus.WithField("value", raw).Warn("Invalid FLUSH_INTERVAL, using default")
		return 0
	}
	return interval
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	store := stores.GetStore()
	engine := syncengine.New(automerge.New(), store, syncengine.Options{
		FlushInterval: flushInterval(),
	})
	engine.Start()

	ioo := websocket.SetupSocketIO(engine)
	r := setupRouter(engine)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{
		Addr:    *listenAddress,
		Handler: r,
	}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown failed")
	}
	ioo.Close(nil)

	// Final flush: persist whatever accumulated since the last tick.
	engine.Close(shutdownCtx)
	logrus.Info("Shutdown complete")
}
