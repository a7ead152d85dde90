package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"qualify/internal/model"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeAnalyticsRecord = "analytics:record"

// AnalyticsStore persists analytics events
type AnalyticsStore interface {
	InsertAnalytics(ctx context.Context, ev model.AnalyticsEvent) error
}

type JobServer struct {
	server *asynq.Server
	client *asynq.Client
	store  AnalyticsStore
	log    *zap.Logger
}

func NewJobServer(redisAddr string, store AnalyticsStore, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server: server,
		client: client,
		store:  store,
		log:    log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	// Register job handlers
	mux.HandleFunc(TypeAnalyticsRecord, js.handleAnalyticsRecord)

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleAnalyticsRecord(ctx context.Context, t *asynq.Task) error {
	var ev model.AnalyticsEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("failed to decode analytics event: %v: %w", err, asynq.SkipRetry)
	}

	if err := js.store.InsertAnalytics(ctx, ev); err != nil {
		return fmt.Errorf("failed to record analytics event: %w", err)
	}

	js.log.Debug("Analytics event recorded",
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.EventType)),
		zap.String("account_id", ev.AccountID))
	return nil
}

// Schedule jobs

// NewAnalyticsTask builds the task recording ev. The event ID doubles as the
// task ID so a retried enqueue never records twice.
func NewAnalyticsTask(ev model.AnalyticsEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAnalyticsRecord, payload,
		asynq.TaskID(ev.ID), asynq.Queue("low"), asynq.MaxRetry(5)), nil
}

func EnqueueAnalytics(ctx context.Context, client *asynq.Client, ev model.AnalyticsEvent) error {
	task, err := NewAnalyticsTask(ev)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task)
	return err
}
