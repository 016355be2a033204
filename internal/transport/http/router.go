// Package http is the thin JSON transport over the verification pipeline.
// Handlers decode, delegate and encode; every decision lives in the services.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civis/internal/authn"
	"civis/internal/ledger"
	"civis/internal/token"
	"civis/internal/voters"
)

// Dependencies wires the router. Health is optional; when set, /healthz
// reports degraded on its error.
type Dependencies struct {
	Authn  *authn.Service
	Audit  *ledger.Ledger
	Voters *voters.SecureStore
	Tokens *token.Issuer // enables the assertion-guarded routes
	Logger *slog.Logger
	Health func(ctx context.Context) error
}

func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		authn:  deps.Authn,
		audit:  deps.Audit,
		voters: deps.Voters,
		logger: logger,
		health: deps.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestScope)
	r.Use(DeviceClass)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions/validate", h.validateIdentifier)
		r.Post("/sessions/{sessionID}/authenticate", h.authenticate)
		r.Post("/sessions/{sessionID}/capture", h.captureAndAuthenticate)
		r.Post("/sessions/{sessionID}/reset", h.reset)

		r.Post("/voters", h.register)
		r.Get("/voters/chain/verify", h.votersVerifyChain)

		r.Get("/audit/events", h.auditEvents)
		r.Get("/audit/verify", h.auditVerify)
		r.Get("/audit/export.csv", h.auditExportCSV)

		if deps.Tokens != nil {
			r.Group(func(r chi.Router) {
				r.Use(RequireAssertion(deps.Tokens, logger))
				r.Post("/votes/cast", h.castVote)
			})
		}
	})

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
