// Package restserver exposes the daemon's small local HTTP surface:
// version info, a shutdown hook, and the one-click queue-map endpoint,
// grounded on the original client's webserver.rs routes.
package restserver

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"saberd/internal/controlplane"
	"saberd/internal/logging"
	"saberd/internal/model"
)

var allowedOrigins = map[string]bool{
	"https://beatsaver.com":  true,
	"http://beatsaver.com":   true,
	"https://scoresaber.com": true,
}

// QueueHandler is implemented by the daemon to enqueue a map-install
// request originating from the REST surface (one-click / CLI).
type QueueHandler interface {
	QueueMapByID(ctx context.Context, mapID string, targetIDs []string) error
}

func New(version string, hub *controlplane.Hub, targets func() []model.Target, queue QueueHandler, log *logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(version))
	})

	r.Get("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		time.AfterFunc(time.Second, func() { os.Exit(0) })
	})

	r.Post("/queue/map/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ids := make([]string, 0)
		for _, t := range targets() {
			ids = append(ids, t.ID)
		}
		if err := queue.QueueMapByID(r.Context(), id, ids); err != nil {
			if log != nil {
				log.Warnf("queue map %s failed: %v", id, err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/pipe", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(targets())(w, r)
	})

	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// cors applies the original webserver's CORS policy (GET/POST, a fixed
// origin allow-list) to every route — a conscious widening of the
// original, which only applied it to queue_map and version_info.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		}
		next.ServeHTTP(w, r)
	})
}
