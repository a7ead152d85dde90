package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"qualify/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const iPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type widgetFixture struct {
	svc      *WidgetService
	store    *MockStore
	counters *MockCounters
	accounts *MockAccounts
}

func newWidgetFixture() *widgetFixture {
	f := &widgetFixture{
		store:    NewMockStore(),
		counters: NewMockCounters(),
		accounts: &MockAccounts{accounts: map[string]model.Account{
			"pk_free":    {ID: "acct_free", Plan: "free"},
			"pk_starter": {ID: "acct_starter", Plan: "starter", Industry: "ecommerce"},
			"pk_ent":     {ID: "acct_ent", Plan: "enterprise"},
		}},
	}
	f.svc = NewWidgetService(f.accounts, f.counters, f.store, WidgetConfig{
		SharePercent:       50,
		QualifiedThreshold: 0.7,
		CalendlyBaseURL:    "https://calendly.com/demo-",
	}, zap.NewNop())
	f.svc.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	return f
}

func hotAnswers() []model.Answer {
	return []model.Answer{
		{QuestionID: "use_case", Question: "Challenge?", Answer: "urgent, we need this ASAP", TimeToAnswer: 2000},
		{QuestionID: "timeline", Question: "When?", Answer: "this month, budget approved", TimeToAnswer: 2500},
		{QuestionID: "decision", Question: "Who?", Answer: "me and the CTO", TimeToAnswer: 4000},
	}
}

func TestWidgetService_InitInvalidKey(t *testing.T) {
	f := newWidgetFixture()

	_, err := f.svc.Init(context.Background(), InitInput{InitRequest: model.InitRequest{APIKey: "pk_nope", VisitorID: "abc"}})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = f.svc.Init(context.Background(), InitInput{InitRequest: model.InitRequest{APIKey: "  ", VisitorID: "abc"}})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	assert.Empty(t, f.store.events)
}

func TestWidgetService_InitAccountBackendError(t *testing.T) {
	f := newWidgetFixture()
	f.accounts.err = errors.New("redis down")

	_, err := f.svc.Init(context.Background(), InitInput{InitRequest: model.InitRequest{APIKey: "pk_free", VisitorID: "abc"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAPIKey)
}

func TestWidgetService_InitAssignsVariant(t *testing.T) {
	f := newWidgetFixture()
	ctx := context.Background()

	shown, err := f.svc.Init(ctx, InitInput{
		InitRequest: model.InitRequest{APIKey: "pk_free", VisitorID: "visitor-1", PageURL: "https://example.com/pricing"},
		Referrer:    "https://google.com",
	})
	require.NoError(t, err)
	assert.True(t, shown.ShowWidget)
	assert.Equal(t, "acct_free", shown.AccountID)
	assert.Equal(t, "use_case", shown.Questions[0].ID)

	control, err := f.svc.Init(ctx, InitInput{InitRequest: model.InitRequest{APIKey: "pk_starter", VisitorID: "abc"}})
	require.NoError(t, err)
	assert.False(t, control.ShowWidget)
	assert.Equal(t, "volume", control.Questions[0].ID)

	require.Len(t, f.store.events, 2)
	assert.Equal(t, model.EventImpression, f.store.events[0].EventType)
	assert.Equal(t, "widget", f.store.events[0].Variant)
	assert.Equal(t, "https://google.com", f.store.events[0].Metadata["referrer"])
	assert.Equal(t, "control", f.store.events[1].Variant)
	assert.NotEmpty(t, f.store.events[0].ID)
}

func TestWidgetService_SubmitQualified(t *testing.T) {
	f := newWidgetFixture()

	out, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey:    "pk_starter",
		VisitorID: "v_1",
		SessionID: "s_1",
		Answers:   hotAnswers(),
		TotalTime: 8500,
	}})
	require.NoError(t, err)

	assert.True(t, out.Qualified)
	assert.GreaterOrEqual(t, out.Score, 0.7)
	require.NotNil(t, out.CalendlyURL)
	assert.Equal(t, "https://calendly.com/demo-acct_starter", *out.CalendlyURL)

	saved, ok := f.store.responses[out.ResponseID]
	require.True(t, ok)
	assert.Equal(t, string(model.LeadQualified), saved.Status)
	assert.Len(t, saved.Answers, 3)
	assert.Equal(t, "2026-10-16T12:00:00Z", saved.Metadata["timestamp"])

	assert.Equal(t, []model.EventType{model.EventQualifiedLead}, f.store.eventTypes())
	assert.Equal(t, int64(1), f.counters.usage["acct_starter:2026-10:leads"])
}

func TestWidgetService_SubmitFreePlanGetsNoCalendly(t *testing.T) {
	f := newWidgetFixture()

	out, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey: "pk_free", VisitorID: "v_1", Answers: hotAnswers(), TotalTime: 8500,
	}})
	require.NoError(t, err)
	assert.True(t, out.Qualified)
	assert.Nil(t, out.CalendlyURL)
}

func TestWidgetService_SubmitNotQualified(t *testing.T) {
	f := newWidgetFixture()

	out, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey: "pk_starter", VisitorID: "v_1", Answers: answers("maybe", "just research", "next year"),
	}})
	require.NoError(t, err)
	assert.False(t, out.Qualified)
	assert.Nil(t, out.CalendlyURL)
	assert.Equal(t, []model.EventType{model.EventUnqualifiedLead}, f.store.eventTypes())
}

func TestWidgetService_SubmitUsageLimit(t *testing.T) {
	f := newWidgetFixture()
	f.counters.usage["acct_free:2026-10:leads"] = 100

	_, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey: "pk_free", VisitorID: "v_1", Answers: hotAnswers(),
	}})
	require.ErrorIs(t, err, ErrUsageLimit)

	var limitErr *UsageLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, int64(100), limitErr.Limit)
	assert.Equal(t, int64(100), limitErr.Used)
	assert.Empty(t, f.store.responses)
}

func TestWidgetService_SubmitUnlimitedPlanSkipsUsageCheck(t *testing.T) {
	f := newWidgetFixture()
	f.counters.usageErr = errors.New("must not be read")

	_, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey: "pk_ent", VisitorID: "v_1", Answers: hotAnswers(),
	}})
	assert.NoError(t, err)
}

func TestWidgetService_SubmitUsageUnavailableIsAccepted(t *testing.T) {
	f := newWidgetFixture()
	f.counters.usageErr = errors.New("redis down")

	_, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{
		APIKey: "pk_free", VisitorID: "v_1", Answers: hotAnswers(),
	}})
	assert.NoError(t, err)
	assert.Len(t, f.store.responses, 1)
}

func TestWidgetService_SubmitClassifiesMissingDevice(t *testing.T) {
	f := newWidgetFixture()

	out, err := f.svc.Submit(context.Background(), SubmitInput{
		SubmitRequest: model.SubmitRequest{APIKey: "pk_free", VisitorID: "v_1", Answers: hotAnswers()},
		UserAgent:     iPhoneUA,
	})
	require.NoError(t, err)

	device, ok := f.store.responses[out.ResponseID].Metadata["device"].(model.DeviceInfo)
	require.True(t, ok)
	assert.Equal(t, model.DeviceMobile, device.Type)
}

func TestWidgetService_SubmitWithoutAnswers(t *testing.T) {
	f := newWidgetFixture()
	_, err := f.svc.Submit(context.Background(), SubmitInput{SubmitRequest: model.SubmitRequest{APIKey: "pk_free"}})
	assert.ErrorIs(t, err, ErrNoAnswers)
}

func TestWidgetService_TrackEnrichesAndCounts(t *testing.T) {
	f := newWidgetFixture()
	ctx := context.Background()

	err := f.svc.Track(ctx, TrackInput{
		TrackEvent: model.TrackEvent{
			APIKey:    "pk_free",
			VisitorID: "v_1",
			SessionID: "s_1",
			EventType: model.EventWidgetOpened,
			Metadata:  map[string]interface{}{"device": "mobile", "browser": "Safari", "timestamp": "2026-10-16T11:59:00Z"},
		},
		UserAgent: iPhoneUA,
		IP:        "203.0.113.7",
	})
	require.NoError(t, err)

	require.Len(t, f.store.events, 1)
	ev := f.store.events[0]
	assert.Equal(t, "acct_free", ev.AccountID)
	assert.Equal(t, "203.0.113.7", ev.Metadata["ip_address"])
	assert.Equal(t, "2026-10-16T11:59:00Z", ev.Metadata["timestamp"])

	require.Len(t, f.counters.stats, 1)
	assert.Equal(t, statsCall{"pk_free", "2026-10-16", "widget_opened", "mobile", "Safari"}, f.counters.stats[0])

	err = f.svc.Track(ctx, TrackInput{TrackEvent: model.TrackEvent{
		APIKey: "pk_free", EventType: model.EventQuestionAnswered,
	}})
	require.NoError(t, err)
	assert.Len(t, f.counters.stats, 1)
	assert.NotEmpty(t, f.store.events[1].Metadata["timestamp"])
}

func TestWidgetService_TrackInvalidKey(t *testing.T) {
	f := newWidgetFixture()
	err := f.svc.Track(context.Background(), TrackInput{TrackEvent: model.TrackEvent{APIKey: "pk_nope", EventType: "widget_opened"}})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestWidgetService_Verify(t *testing.T) {
	f := newWidgetFixture()
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, VerifyInput{VerifyRequest: model.VerifyRequest{APIKey: "pk_free"}})
	assert.ErrorIs(t, err, ErrMissingParams)

	_, err = f.svc.Verify(ctx, VerifyInput{VerifyRequest: model.VerifyRequest{APIKey: "pk_nope", Domain: "example.com"}})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	out, err := f.svc.Verify(ctx, VerifyInput{VerifyRequest: model.VerifyRequest{APIKey: "pk_free", Domain: " Example.COM "}})
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, "example.com", out.Domain)
	assert.True(t, f.counters.verified["pk_free:example.com"].Verified)
}

func TestWidgetService_AnalyticsViaJobClient(t *testing.T) {
	f := newWidgetFixture()
	jobs := &MockJobClient{}
	f.svc.SetJobClient(jobs)

	_, err := f.svc.Init(context.Background(), InitInput{InitRequest: model.InitRequest{APIKey: "pk_free", VisitorID: "abc"}})
	require.NoError(t, err)
	assert.Len(t, jobs.events, 1)
	assert.Empty(t, f.store.events)

	// Enqueue failures fall back to a direct insert
	jobs.err = errors.New("queue full")
	_, err = f.svc.Init(context.Background(), InitInput{InitRequest: model.InitRequest{APIKey: "pk_free", VisitorID: "abc"}})
	require.NoError(t, err)
	assert.Len(t, f.store.events, 1)
}
