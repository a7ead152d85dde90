package service

import (
	"context"

	"qualify/internal/model"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// AnalyticsStore persists analytics events synchronously
type AnalyticsStore interface {
	InsertAnalytics(ctx context.Context, ev model.AnalyticsEvent) error
}

// recorder writes analytics events through the job queue when one is
// configured, falling back to a direct insert. Failures are logged only.
type recorder struct {
	store     AnalyticsStore
	jobClient JobClient
	log       *zap.Logger
}

func (r *recorder) record(ctx context.Context, ev model.AnalyticsEvent) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if r.jobClient != nil {
		err := r.jobClient.EnqueueAnalytics(ctx, ev)
		if err == nil {
			return
		}
		r.log.Warn("Failed to enqueue analytics event, recording inline",
			zap.String("event_type", string(ev.EventType)), zap.Error(err))
	}
	if err := r.store.InsertAnalytics(ctx, ev); err != nil {
		r.log.Error("Failed to record analytics event",
			zap.String("event_type", string(ev.EventType)),
			zap.String("account_id", ev.AccountID),
			zap.Error(err))
	}
}
