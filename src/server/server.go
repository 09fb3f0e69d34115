package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/cache"
	"tradetrace/src/ghost"
	"tradetrace/src/handler"
)

func StartServer(port string, view *cache.View, forwarder *ghost.Forwarder) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/traces", handler.ListTracesHandler(view))
		r.Get("/traces/filter", handler.FilterTracesHandler(view))
		r.Route("/traces/{traceID}", func(r chi.Router) {
			r.Get("/", handler.GetTraceHandler(view))
			r.Get("/events", handler.TraceEventsHandler(view))
			r.Get("/fills", handler.TraceFillsHandler(view))
			r.Get("/exit-warning", handler.ExitWarningHandler(view))
			r.Post("/refresh", handler.RefreshTraceHandler(view))
			r.Post("/forward", handler.ForwardTraceHandler(view, forwarder))
		})
		r.Get("/alerts", handler.ListAlertsHandler(view))
		r.Get("/alerts/{alertID}", handler.GetAlertHandler(view))
		r.Get("/settings", handler.GetSettingsHandler(view))
		r.Put("/settings", handler.SaveSettingsHandler(view))
	})

	r.Post("/webhooks/tradingview", handler.ReceiveWebhookHandler(view))
	r.Post("/webhooks/ghost", handler.GhostCallbackHandler(view))
	r.Get("/ws/traces", handler.TraceStreamHandler(view))

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
