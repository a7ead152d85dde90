package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qualify/internal/cache"
	"qualify/internal/db"
	"qualify/internal/metrics"
	"qualify/internal/model"
	"qualify/internal/probe"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrUsageLimit    = errors.New("lead limit exceeded")
	ErrNoAnswers     = errors.New("submission has no answers")
	ErrMissingParams = errors.New("missing required parameters")
)

// UsageLimitError reports the plan allowance that blocked a submission
type UsageLimitError struct {
	Limit int64
	Used  int64
}

func (e *UsageLimitError) Error() string {
	return fmt.Sprintf("lead limit exceeded: %d of %d used", e.Used, e.Limit)
}

func (e *UsageLimitError) Unwrap() error {
	return ErrUsageLimit
}

// Accounts resolves API keys
type Accounts interface {
	Get(ctx context.Context, apiKey string) (model.Account, error)
}

// Counters holds fast-moving per-account counters
type Counters interface {
	Usage(ctx context.Context, accountID, month, field string) (int64, error)
	IncrementUsage(ctx context.Context, accountID, month, field string) error
	IncrementStats(ctx context.Context, apiKey, day, eventType, device, browser string) error
	MarkVerified(ctx context.Context, apiKey, domain string, v cache.Verification) error
}

// ResponseStore persists submitted conversations
type ResponseStore interface {
	AnalyticsStore
	CreateResponse(ctx context.Context, r db.Response) (db.Response, error)
}

// WidgetConfig tunes the widget endpoints
type WidgetConfig struct {
	SharePercent       int
	QualifiedThreshold float64
	CalendlyBaseURL    string
}

// Events counted in the daily stats hashes
var statsEvents = map[model.EventType]bool{
	model.EventWidgetOpened:  true,
	model.EventFormCompleted: true,
	model.EventQualifiedLead: true,
}

// Events with their own metrics label; anything else is counted as "other"
var knownEvents = map[model.EventType]bool{
	model.EventWidgetOpened:     true,
	model.EventQuestionAnswered: true,
	model.EventFormCompleted:    true,
	model.EventWidgetClosed:     true,
	model.EventWidgetAbandoned:  true,
	model.EventQualifiedLead:    true,
}

type WidgetService struct {
	accounts Accounts
	counters Counters
	store    ResponseStore
	cfg      WidgetConfig
	rec      *recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewWidgetService(accounts Accounts, counters Counters, store ResponseStore, cfg WidgetConfig, log *zap.Logger) *WidgetService {
	return &WidgetService{
		accounts: accounts,
		counters: counters,
		store:    store,
		cfg:      cfg,
		rec:      &recorder{store: store, log: log},
		log:      log,
		now:      time.Now,
	}
}

// SetJobClient routes analytics writes through background jobs
func (s *WidgetService) SetJobClient(client JobClient) {
	s.rec.jobClient = client
}

func (s *WidgetService) account(ctx context.Context, apiKey string) (model.Account, error) {
	if strings.TrimSpace(apiKey) == "" {
		return model.Account{}, ErrInvalidAPIKey
	}
	a, err := s.accounts.Get(ctx, apiKey)
	if errors.Is(err, db.ErrNotFound) {
		return model.Account{}, ErrInvalidAPIKey
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to resolve account: %w", err)
	}
	return a, nil
}

type InitInput struct {
	model.InitRequest
	Referrer string
}

// Init assigns the visitor to a variant, records the impression and returns
// the account's question set
func (s *WidgetService) Init(ctx context.Context, in InitInput) (model.InitResponse, error) {
	account, err := s.account(ctx, in.APIKey)
	if err != nil {
		return model.InitResponse{}, err
	}

	show := ShowWidget(in.VisitorID, s.cfg.SharePercent)
	variant := "control"
	if show {
		variant = "widget"
	}

	referrer := in.Referrer
	if referrer == "" {
		referrer = in.InitRequest.Referrer
	}
	s.rec.record(ctx, model.AnalyticsEvent{
		AccountID: account.ID,
		EventType: model.EventImpression,
		VisitorID: in.VisitorID,
		PageURL:   in.PageURL,
		Variant:   variant,
		Metadata:  map[string]interface{}{"referrer": referrer},
	})
	metrics.Impressions.WithLabelValues(variant).Inc()

	industry := account.Industry
	if industry == "" {
		industry = "saas"
	}
	return model.InitResponse{
		ShowWidget: show,
		Questions:  QuestionsForIndustry(industry),
		AccountID:  account.ID,
	}, nil
}

type SubmitInput struct {
	model.SubmitRequest
	UserAgent string
	Referrer  string
}

// Submit scores a finished conversation and stores it as a lead
func (s *WidgetService) Submit(ctx context.Context, in SubmitInput) (model.SubmitResponse, error) {
	if len(in.Answers) == 0 {
		return model.SubmitResponse{}, ErrNoAnswers
	}
	account, err := s.account(ctx, in.APIKey)
	if err != nil {
		return model.SubmitResponse{}, err
	}

	now := s.now().UTC()
	month := now.Format("2006-01")
	if limit := PlanLeadLimit(account.Plan); limit >= 0 {
		used, err := s.counters.Usage(ctx, account.ID, month, "leads")
		if err != nil {
			s.log.Warn("Usage unavailable, accepting submission", zap.String("account_id", account.ID), zap.Error(err))
		} else if used >= limit {
			return model.SubmitResponse{}, &UsageLimitError{Limit: limit, Used: used}
		}
	}

	device := in.Device
	if device.Type == "" && in.UserAgent != "" {
		device = probe.ClassifyUserAgent(in.UserAgent)
	}

	score := RuleScore(in.Answers)
	qualified := score >= s.cfg.QualifiedThreshold
	engagement := EngagementScore(in.Answers, in.TotalTime)
	status := model.LeadNotQualified
	if qualified {
		status = model.LeadQualified
	}
	timestamp := in.Timestamp
	if timestamp == "" {
		timestamp = now.Format(time.RFC3339Nano)
	}

	saved, err := s.store.CreateResponse(ctx, db.Response{
		ID:              ulid.Make().String(),
		AccountID:       account.ID,
		VisitorID:       in.VisitorID,
		SessionID:       in.SessionID,
		PageURL:         in.PageURL,
		PageTitle:       in.PageTitle,
		Answers:         in.Answers,
		Score:           score,
		Qualified:       qualified,
		Status:          string(status),
		EngagementScore: engagement,
		Metadata: map[string]interface{}{
			"session_id":         in.SessionID,
			"user_agent":         in.UserAgent,
			"device":             device,
			"timestamp":          timestamp,
			"totalTime":          in.TotalTime,
			"avgTimePerQuestion": float64(in.TotalTime) / float64(len(in.Answers)),
			"engagementScore":    engagement,
			"referrer":           in.Referrer,
		},
	})
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("failed to save response: %w", err)
	}

	eventType := model.EventUnqualifiedLead
	if qualified {
		eventType = model.EventQualifiedLead
	}
	s.rec.record(ctx, model.AnalyticsEvent{
		AccountID: account.ID,
		EventType: eventType,
		VisitorID: in.VisitorID,
		SessionID: in.SessionID,
		PageURL:   in.PageURL,
		Metadata: map[string]interface{}{
			"session_id":       in.SessionID,
			"score":            score,
			"response_id":      saved.ID,
			"device_type":      orUnknown(string(device.Type)),
			"browser":          orUnknown(device.Browser),
			"os":               orUnknown(device.OS),
			"viewport_width":   device.Viewport.Width,
			"viewport_height":  device.Viewport.Height,
			"engagement_score": engagement,
		},
	})

	if err := s.counters.IncrementUsage(ctx, account.ID, month, "leads"); err != nil {
		s.log.Warn("Failed to update usage", zap.String("account_id", account.ID), zap.Error(err))
	}
	metrics.ObserveLead(qualified, score)

	s.log.Info("Lead scored",
		zap.String("account_id", account.ID),
		zap.String("response_id", saved.ID),
		zap.Float64("score", score),
		zap.Bool("qualified", qualified))

	out := model.SubmitResponse{
		Qualified:  qualified,
		Score:      score,
		ResponseID: saved.ID,
	}
	if qualified && account.Plan != "free" && s.cfg.CalendlyBaseURL != "" {
		u := s.cfg.CalendlyBaseURL + account.ID
		out.CalendlyURL = &u
	}
	return out, nil
}

type TrackInput struct {
	model.TrackEvent
	UserAgent string
	IP        string
	Referrer  string
}

// Track records a widget event. Only an unknown API key is an error.
func (s *WidgetService) Track(ctx context.Context, in TrackInput) error {
	account, err := s.account(ctx, in.APIKey)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	metadata := make(map[string]interface{}, len(in.Metadata)+4)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["user_agent"] = in.UserAgent
	metadata["ip_address"] = in.IP
	metadata["referrer"] = in.Referrer
	if ts, _ := metadata["timestamp"].(string); ts == "" {
		metadata["timestamp"] = now.Format(time.RFC3339Nano)
	}

	s.rec.record(ctx, model.AnalyticsEvent{
		AccountID: account.ID,
		EventType: in.EventType,
		VisitorID: in.VisitorID,
		SessionID: in.SessionID,
		PageURL:   in.PageURL,
		Metadata:  metadata,
	})

	label := string(in.EventType)
	if !knownEvents[in.EventType] {
		label = "other"
	}
	metrics.Events.WithLabelValues(label).Inc()

	if statsEvents[in.EventType] {
		device, _ := in.Metadata["device"].(string)
		browser, _ := in.Metadata["browser"].(string)
		if err := s.counters.IncrementStats(ctx, in.APIKey, now.Format("2006-01-02"), string(in.EventType), device, browser); err != nil {
			s.log.Warn("Failed to update daily stats", zap.Error(err))
		}
	}
	return nil
}

type VerifyInput struct {
	model.VerifyRequest
	UserAgent string
	IP        string
}

// Verify confirms an installation and remembers it for a day
func (s *WidgetService) Verify(ctx context.Context, in VerifyInput) (model.VerifyResponse, error) {
	domain := strings.ToLower(strings.TrimSpace(in.Domain))
	if strings.TrimSpace(in.APIKey) == "" || domain == "" {
		return model.VerifyResponse{}, ErrMissingParams
	}
	if _, err := s.account(ctx, in.APIKey); err != nil {
		return model.VerifyResponse{}, err
	}

	ts := s.now().UTC().Format(time.RFC3339)
	if err := s.counters.MarkVerified(ctx, in.APIKey, domain, cache.Verification{
		Verified:  true,
		Timestamp: ts,
		UserAgent: in.UserAgent,
		IP:        in.IP,
	}); err != nil {
		return model.VerifyResponse{}, err
	}

	return model.VerifyResponse{
		Verified:  true,
		Message:   "Widget installation verified successfully",
		Domain:    domain,
		Timestamp: ts,
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
