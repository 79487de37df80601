package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/trainboard/internal/api/middleware"
	"github.com/kiranshivaraju/trainboard/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler http.HandlerFunc
	StatsHandler  http.HandlerFunc

	ListDatasets  http.HandlerFunc
	UploadDataset http.HandlerFunc

	ListModels      http.HandlerFunc
	TrainModel      http.HandlerFunc
	TestModel       http.HandlerFunc
	Predict         http.HandlerFunc
	ListDeployments http.HandlerFunc
	DeployModel     http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if len(deps.CORSOrigins) > 0 {
		r.Use(mw.CORS(deps.CORSOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		// Public health check
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)

			r.Get("/dashboard/stats", orNotImplemented(deps.StatsHandler))

			r.Get("/datasets", orNotImplemented(deps.ListDatasets))
			r.Post("/datasets/upload", orNotImplemented(deps.UploadDataset))

			r.Get("/models", orNotImplemented(deps.ListModels))
			r.Post("/models/train", orNotImplemented(deps.TrainModel))
			r.Get("/models/deployed", orNotImplemented(deps.ListDeployments))
			r.Post("/models/{id}/test", orNotImplemented(deps.TestModel))
			r.Post("/models/{id}/predict", orNotImplemented(deps.Predict))
			r.Post("/models/{id}/deploy", orNotImplemented(deps.DeployModel))

			r.Post("/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
