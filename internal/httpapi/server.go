// Package httpapi ties C1-C8 behind the HTTP surface spec.md §7 defines
// under /api/v1 — this is C9, the Orchestrator, minus process bootstrap
// (that lives in cmd/sectify).
package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sectify/sectify/internal/authz"
	"github.com/sectify/sectify/internal/hls"
	"github.com/sectify/sectify/internal/kdf"
	"github.com/sectify/sectify/internal/keyalias"
	"github.com/sectify/sectify/internal/objstore"
	"github.com/sectify/sectify/internal/store"
	"github.com/sectify/sectify/internal/tokens"
)

// Deps is everything the HTTP surface needs. cmd/sectify constructs one of
// these during startup and passes it to NewRouter.
type Deps struct {
	DB         *store.Store
	KV         *redis.Client
	Files      objstore.ObjectStore
	KDF        *kdf.Service
	Tokens     *tokens.Service
	AuthZ      *authz.Service
	Keys       *keyalias.Store
	Packager   *hls.Packager
	HLSRoot    string
	Log        *slog.Logger
	LoginLimit int
	AccessTTL  time.Duration
}

// NewRouter builds the full chi router, mounting every operation spec.md
// §7 names under /api/v1, plus healthz/readyz for orchestration.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.LoginLimit == 0 {
		d.LoginLimit = 10
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware(d.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(d))
	r.Handle("/metrics", promhttp.Handler())

	a := &authHandlers{d: d}
	t := &trackHandlers{d: d}
	s := &streamHandlers{d: d}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", a.signup)
		r.Post("/auth/login", a.login)
		r.Post("/auth/login/verify-2fa", a.verify2FA)

		r.Get("/audio/tracks/public", t.listPublic)

		r.Group(func(r chi.Router) {
			r.Use(requireAccessToken(d))
			r.Post("/audio/upload", t.upload)
		})

		r.Get("/stream/playlist/{track_id}", s.playlist)
		r.Get("/stream/segment/{track_id}/{n}", s.segment)
		r.Get("/stream/key/{alias}", s.key)
	})

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func readyz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.Ping(r.Context()); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := d.KV.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "keyval: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func slogMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// clientIP prefers the RealIP middleware's rewrite of r.RemoteAddr, and
// strips the port when r.RemoteAddr is a host:port pair.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
