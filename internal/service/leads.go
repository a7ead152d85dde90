package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qualify/internal/db"
	"qualify/internal/model"

	"go.uber.org/zap"
)

var (
	ErrLeadNotFound  = errors.New("lead not found")
	ErrInvalidStatus = errors.New("invalid status. Must be: qualified, not_qualified, or pending")
)

const (
	defaultLeadPage = 50
	maxLeadPage     = 200
)

// LeadStore reads and updates stored conversations
type LeadStore interface {
	AnalyticsStore
	ListResponses(ctx context.Context, p db.ListResponsesParams) ([]db.Response, error)
	GetResponse(ctx context.Context, accountID, id string) (db.Response, error)
	UpdateResponseStatus(ctx context.Context, accountID, id, status string) (db.Response, error)
}

type LeadService struct {
	store LeadStore
	rec   *recorder
	log   *zap.Logger
}

func NewLeadService(store LeadStore, log *zap.Logger) *LeadService {
	return &LeadService{
		store: store,
		rec:   &recorder{store: store, log: log},
		log:   log,
	}
}

// SetJobClient routes analytics writes through background jobs
func (s *LeadService) SetJobClient(client JobClient) {
	s.rec.jobClient = client
}

type ListLeadsInput struct {
	Status model.LeadStatus
	Limit  int
	Offset int
}

func (s *LeadService) List(ctx context.Context, accountID string, in ListLeadsInput) ([]model.Lead, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if in.Limit <= 0 {
		in.Limit = defaultLeadPage
	}
	if in.Limit > maxLeadPage {
		in.Limit = maxLeadPage
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	rows, err := s.store.ListResponses(ctx, db.ListResponsesParams{
		AccountID: accountID,
		Status:    string(in.Status),
		Limit:     in.Limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	leads := make([]model.Lead, 0, len(rows))
	for _, r := range rows {
		leads = append(leads, toLead(r))
	}
	return leads, nil
}

func (s *LeadService) Get(ctx context.Context, accountID, id string) (model.Lead, error) {
	r, err := s.store.GetResponse(ctx, accountID, id)
	if errors.Is(err, db.ErrNotFound) {
		return model.Lead{}, ErrLeadNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("failed to get lead: %w", err)
	}
	return toLead(r), nil
}

// UpdateStatus changes a lead's review status and logs the change
func (s *LeadService) UpdateStatus(ctx context.Context, accountID, id string, status model.LeadStatus) (model.Lead, error) {
	if !status.Valid() {
		return model.Lead{}, ErrInvalidStatus
	}

	r, err := s.store.UpdateResponseStatus(ctx, accountID, id, string(status))
	if errors.Is(err, db.ErrNotFound) {
		return model.Lead{}, ErrLeadNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("failed to update lead status: %w", err)
	}

	s.rec.record(ctx, model.AnalyticsEvent{
		AccountID: accountID,
		EventType: model.EventLeadStatus,
		VisitorID: r.VisitorID,
		Metadata: map[string]interface{}{
			"lead_id":    id,
			"new_status": string(status),
		},
	})
	s.log.Info("Lead status changed", zap.String("lead_id", id), zap.String("status", string(status)))
	return toLead(r), nil
}

func toLead(r db.Response) model.Lead {
	return model.Lead{
		ID:              r.ID,
		AccountID:       r.AccountID,
		VisitorID:       r.VisitorID,
		SessionID:       r.SessionID,
		PageURL:         r.PageURL,
		PageTitle:       r.PageTitle,
		Answers:         r.Answers,
		Score:           r.Score,
		Qualified:       r.Qualified,
		Status:          model.LeadStatus(r.Status),
		EngagementScore: r.EngagementScore,
		Metadata:        r.Metadata,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
