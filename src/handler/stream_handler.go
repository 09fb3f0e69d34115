package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/cache"
	"tradetrace/src/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamView interface {
	ListTraces(ctx context.Context) ([]model.Trace, error)
	Subscribe() chan cache.Key
	Unsubscribe(ch chan cache.Key)
}

// TraceStreamHandler pushes the trace list over a websocket: once on
// connect, then again whenever the cache invalidates or refreshes traces.
func TraceStreamHandler(view streamView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger.Debug("trace stream client connected")

		traces, err := view.ListTraces(r.Context())
		if err == nil {
			if err := conn.WriteJSON(traces); err != nil {
				logger.WithError(err).Debug("trace stream write failed")
				return
			}
		}

		sub := view.Subscribe()
		defer view.Unsubscribe(sub)

		// Reader goroutine only to detect the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case key, ok := <-sub:
				if !ok {
					return
				}
				if key.Kind != cache.KindTraces {
					continue
				}
				traces, err := view.ListTraces(r.Context())
				if err != nil {
					continue
				}
				if err := conn.WriteJSON(traces); err != nil {
					logger.WithError(err).Debug("trace stream write failed")
					return
				}
			}
		}
	}
}
