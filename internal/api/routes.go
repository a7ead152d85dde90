package api

import (
	"context"
	"net/http"

	"qualify/internal/auth"
	"qualify/internal/model"
	"qualify/internal/schema"
	"qualify/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WidgetAPI serves the endpoints the embedded widget calls
type WidgetAPI interface {
	Init(ctx context.Context, in service.InitInput) (model.InitResponse, error)
	Submit(ctx context.Context, in service.SubmitInput) (model.SubmitResponse, error)
	Track(ctx context.Context, in service.TrackInput) error
	Verify(ctx context.Context, in service.VerifyInput) (model.VerifyResponse, error)
}

// LeadsAPI serves an account's stored leads
type LeadsAPI interface {
	List(ctx context.Context, accountID string, in service.ListLeadsInput) ([]model.Lead, error)
	Get(ctx context.Context, accountID, id string) (model.Lead, error)
	UpdateStatus(ctx context.Context, accountID, id string, status model.LeadStatus) (model.Lead, error)
}

type Dependencies struct {
	Widget       WidgetAPI
	Leads        LeadsAPI
	Schema       *schema.Compiler
	Auth         *auth.JWTConfig
	TrackLimiter *RateLimiter
	Log          *zap.Logger
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	// Add request logging middleware
	r.Use(RequestLogger(d.Log))

	// Widget endpoints, called cross-origin from customer pages
	r.Route("/api/widget", func(r chi.Router) {
		r.Use(CORS)
		r.With(Observe("init")).Post("/init", d.widgetInit)
		r.With(Observe("submit")).Post("/submit", d.widgetSubmit)
		r.With(Observe("track")).Post("/track", d.widgetTrack)
		r.Get("/track", d.trackHealth)
		r.With(Observe("verify")).Post("/verify", d.widgetVerify)
	})

	// Lead endpoints, authenticated per account
	jwtConfig := *d.Auth
	jwtConfig.OnReject = func(w http.ResponseWriter, message string) {
		WriteError(w, http.StatusUnauthorized, "unauthorized", message, d.Log)
	}
	r.Route("/api/leads", func(r chi.Router) {
		r.Use(jwtConfig.Middleware)
		r.Get("/", d.listLeads)
		r.Get("/{id}", d.getLead)
		r.Patch("/{id}/status", d.updateLeadStatus)
	})

	return r
}
