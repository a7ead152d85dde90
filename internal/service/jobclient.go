package service

import (
	"context"

	"qualify/internal/jobs"
	"qualify/internal/model"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	EnqueueAnalytics(ctx context.Context, ev model.AnalyticsEvent) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) EnqueueAnalytics(ctx context.Context, ev model.AnalyticsEvent) error {
	return jobs.EnqueueAnalytics(ctx, c.client, ev)
}
