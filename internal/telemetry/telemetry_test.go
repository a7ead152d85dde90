package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qualify/internal/delivery"
	"qualify/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentBeacon struct {
	url         string
	contentType string
	body        []byte
}

type fakeBeacon struct {
	mu     sync.Mutex
	sent   []sentBeacon
	reject bool
	panics bool
}

func (b *fakeBeacon) SendBeacon(url, contentType string, body []byte) bool {
	if b.panics {
		panic("beacon exploded")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentBeacon{url, contentType, body})
	return !b.reject
}

func (b *fakeBeacon) Sent() []sentBeacon {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentBeacon(nil), b.sent...)
}

var session = Session{
	Endpoint:  "https://api.example.com/api/widget/track",
	APIKey:    "pk_test",
	VisitorID: "v_1",
	SessionID: "s_1",
	PageURL:   "https://shop.example.com/pricing",
	Device:    model.DeviceInfo{Type: model.DeviceDesktop, OS: "macOS", Browser: "Safari"},
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestEmitter_PrefersBeacon(t *testing.T) {
	b := &fakeBeacon{}
	sel := Selector{Beacon: func() Beacon { return b }}
	e := NewEmitter(session, sel, nil, nil, fixedNow, nil)

	e.Emit(model.EventQuestionAnswered, map[string]interface{}{"questionIndex": 0})
	e.Wait()

	sent := b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, session.Endpoint, sent[0].url)
	assert.Equal(t, "text/plain;charset=UTF-8", sent[0].contentType)

	var ev model.TrackEvent
	require.NoError(t, json.Unmarshal(sent[0].body, &ev))
	assert.Equal(t, model.EventQuestionAnswered, ev.EventType)
	assert.Equal(t, "pk_test", ev.APIKey)
	assert.Equal(t, "desktop", ev.Metadata["device"])
	assert.Equal(t, "Safari", ev.Metadata["browser"])
	assert.Equal(t, "2026-03-01T12:00:00Z", ev.Metadata["timestamp"])
	assert.EqualValues(t, 0, ev.Metadata["questionIndex"])
}

func TestEmitter_FallsBackToKeepAlive(t *testing.T) {
	got := make(chan model.TrackEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev model.TrackEvent
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &ev)
		got <- ev
	}))
	defer srv.Close()

	s := session
	s.Endpoint = srv.URL
	sel := Selector{
		Beacon:    func() Beacon { return nil },
		KeepAlive: KeepAliveTransport{Client: srv.Client()},
	}
	e := NewEmitter(s, sel, nil, nil, nil, nil)
	e.Emit(model.EventWidgetOpened, nil)
	e.Wait()

	select {
	case ev := <-got:
		assert.Equal(t, model.EventWidgetOpened, ev.EventType)
	default:
		t.Fatal("no event received")
	}
}

func TestSelector_ProbesAtCallTime(t *testing.T) {
	var available bool
	b := &fakeBeacon{}
	sel := Selector{Beacon: func() Beacon {
		if available {
			return b
		}
		return nil
	}}

	_, isKeepAlive := sel.Transport().(KeepAliveTransport)
	assert.True(t, isKeepAlive)

	available = true
	_, isBeacon := sel.Transport().(BeaconTransport)
	assert.True(t, isBeacon)
}

func TestEmitter_OfflineEventsAreQueued(t *testing.T) {
	b := &fakeBeacon{}
	q := delivery.NewQueue(nil, nil)
	e := NewEmitter(session, Selector{Beacon: func() Beacon { return b }}, delivery.NewConnectivity(false), q, fixedNow, nil)

	e.Emit(model.EventWidgetClosed, nil)
	e.EmitSync(context.Background(), model.EventWidgetAbandoned, nil)
	e.Wait()

	assert.Empty(t, b.Sent())
	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, session.Endpoint, entries[0].URL)
	assert.Contains(t, string(entries[0].Body), `"eventType":"widget_closed"`)
	assert.Contains(t, string(entries[1].Body), `"eventType":"widget_abandoned"`)
}

func TestEmitter_NeverBlocks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	s := session
	s.Endpoint = srv.URL
	e := NewEmitter(s, Selector{KeepAlive: KeepAliveTransport{Client: srv.Client()}}, nil, nil, nil, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		e.Emit(model.EventQuestionAnswered, nil)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	e.Wait()
}

func TestEmitter_SwallowsFailures(t *testing.T) {
	rejecting := &fakeBeacon{reject: true}
	e := NewEmitter(session, Selector{Beacon: func() Beacon { return rejecting }}, nil, nil, nil, nil)
	e.Emit(model.EventFormCompleted, nil)
	e.Wait()
	assert.Len(t, rejecting.Sent(), 1)

	exploding := &fakeBeacon{panics: true}
	e = NewEmitter(session, Selector{Beacon: func() Beacon { return exploding }}, nil, nil, nil, nil)
	assert.NotPanics(t, func() {
		e.EmitSync(context.Background(), model.EventWidgetAbandoned, nil)
		e.Emit(model.EventWidgetClosed, nil)
		e.Wait()
	})
}
