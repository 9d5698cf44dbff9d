package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routable is implemented by every domain handler.
type Routable interface {
	Routes(r chi.Router)
}

// Pinger reports whether the backing store is reachable.
type Pinger func(ctx context.Context) error

func NewRouter(log logger.ZapLogger, ping Pinger, handlers ...Routable) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Actor)
		for _, h := range handlers {
			h.Routes(r)
		}
	})
	return r
}
