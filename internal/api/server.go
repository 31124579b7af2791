package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the HTTP surface.
type Options struct {
	Port         string
	AdminAPIKey  string
	KeeperAPIKey string
	// AuthorityID and KeeperID are the identities admin and keeper routes act as.
	AuthorityID string
	KeeperID    string
	// SettlementPoolID is used when a settle request names no pool.
	SettlementPoolID string
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(opts Options, deps Deps) *http.Server {
	return &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      NewRouter(opts, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter builds the route tree.
func NewRouter(opts Options, deps Deps) http.Handler {
	h := NewHandler(deps, opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/protocol", h.GetProtocol)
		r.Get("/pools", h.ListPools)
		r.Get("/stats", h.GetStats)
		r.Get("/users/{user}", h.GetUser)
		r.Get("/users/{user}/conversions", h.ListConversions)
		r.Get("/snapshots/latest", h.GetLatestSnapshot)
		r.Get("/snapshots/{date}", h.GetSnapshotByDate)
		r.Get("/snapshots", h.ListSnapshots)
		if deps.Events != nil {
			r.Handle("/events", deps.Events)
		}

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/deposits/fiat", h.DepositFiat)
			r.Post("/deposits/stable", h.DepositStable)
			r.Post("/conversions/{nonce}/cancel", h.CancelConversion)
			r.Post("/withdrawals", h.Withdraw)
			r.Post("/yield/claim", h.ClaimYield)
		})

		r.Route("/keeper", func(r chi.Router) {
			r.Use(authMiddleware("keeper", opts.KeeperAPIKey))
			r.Post("/conversions/{user}/{nonce}/settle", h.SettleConversion)
			r.Post("/conversions/{user}/{nonce}/expire", h.ExpireConversion)
			r.Post("/pools/{pool}/nav", h.UpdateNAV)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware("admin", opts.AdminAPIKey))
			r.Post("/protocol", h.InitializeProtocol)
			r.Post("/pools", h.RegisterPool)
			r.Patch("/pools/{pool}", h.UpdatePool)
			r.Put("/fees", h.UpdateFees)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
		})
	})

	return r
}

// authMiddleware protects a route group with a bearer key. An empty key leaves the group open,
// which is only meant for local development.
func authMiddleware(group, apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		slog.Warn("api key not set, routes are unauthenticated", "group", group)
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return requireAuth(apiKey, next)
	}
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
