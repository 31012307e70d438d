package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/bucketnav/internal/server/handlers"
	servermw "github.com/3leaps/bucketnav/internal/server/middleware"
)

// Handler returns the proxy's router.
func (p *Proxy) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(servermw.RequestID)
	r.Use(servermw.Recovery(p.logger))
	r.Use(p.metrics.Instrument)
	r.Use(p.cors)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/healthz", handlers.Healthz)
	if p.metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.metrics.Handler())
	}

	r.Get("/s3", p.handleList)
	r.Head("/s3", p.handleList)

	r.Get("/s3/*", p.handleObject)
	r.Head("/s3/*", p.handleObject)
	r.Put("/s3/*", p.handleObject)
	if p.cfg.AllowDelete {
		r.Delete("/s3/*", p.handleObject)
	}

	if p.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(p.cfg.StaticDir)))
	}
	return r
}

// cors answers preflights and marks every response as shareable.
func (p *Proxy) cors(next http.Handler) http.Handler {
	methods := "GET, HEAD, PUT, OPTIONS"
	if p.cfg.AllowDelete {
		methods = "GET, HEAD, PUT, DELETE, OPTIONS"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Range, If-None-Match, If-Modified-Since, Accept, User-Agent")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
