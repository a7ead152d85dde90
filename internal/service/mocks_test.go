package service

import (
	"context"
	"sync"

	"qualify/internal/cache"
	"qualify/internal/db"
	"qualify/internal/model"
)

// MockAccounts implements Accounts for testing
type MockAccounts struct {
	accounts map[string]model.Account
	err      error
}

func (m *MockAccounts) Get(_ context.Context, apiKey string) (model.Account, error) {
	if m.err != nil {
		return model.Account{}, m.err
	}
	a, ok := m.accounts[apiKey]
	if !ok {
		return model.Account{}, db.ErrNotFound
	}
	return a, nil
}

type statsCall struct {
	APIKey, Day, EventType, Device, Browser string
}

// MockCounters implements Counters for testing
type MockCounters struct {
	mu       sync.Mutex
	usage    map[string]int64
	usageErr error
	stats    []statsCall
	verified map[string]cache.Verification
}

func NewMockCounters() *MockCounters {
	return &MockCounters{
		usage:    make(map[string]int64),
		verified: make(map[string]cache.Verification),
	}
}

func (m *MockCounters) Usage(_ context.Context, accountID, month, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usageErr != nil {
		return 0, m.usageErr
	}
	return m.usage[accountID+":"+month+":"+field], nil
}

func (m *MockCounters) IncrementUsage(_ context.Context, accountID, month, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[accountID+":"+month+":"+field]++
	return nil
}

func (m *MockCounters) IncrementStats(_ context.Context, apiKey, day, eventType, device, browser string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, statsCall{apiKey, day, eventType, device, browser})
	return nil
}

func (m *MockCounters) MarkVerified(_ context.Context, apiKey, domain string, v cache.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[apiKey+":"+domain] = v
	return nil
}

// MockStore implements ResponseStore and LeadStore for testing
type MockStore struct {
	mu        sync.Mutex
	responses map[string]db.Response
	events    []model.AnalyticsEvent
	listed    []db.ListResponsesParams
}

func NewMockStore() *MockStore {
	return &MockStore{responses: make(map[string]db.Response)}
}

func (m *MockStore) InsertAnalytics(_ context.Context, ev model.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MockStore) CreateResponse(_ context.Context, r db.Response) (db.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[r.ID] = r
	return r, nil
}

func (m *MockStore) ListResponses(_ context.Context, p db.ListResponsesParams) ([]db.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed = append(m.listed, p)
	var out []db.Response
	for _, r := range m.responses {
		if r.AccountID == p.AccountID && (p.Status == "" || r.Status == p.Status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockStore) GetResponse(_ context.Context, accountID, id string) (db.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.responses[id]
	if !ok || r.AccountID != accountID {
		return db.Response{}, db.ErrNotFound
	}
	return r, nil
}

func (m *MockStore) UpdateResponseStatus(_ context.Context, accountID, id, status string) (db.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.responses[id]
	if !ok || r.AccountID != accountID {
		return db.Response{}, db.ErrNotFound
	}
	r.Status = status
	m.responses[id] = r
	return r, nil
}

func (m *MockStore) eventTypes() []model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventType
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

// MockJobClient implements JobClient for testing
type MockJobClient struct {
	events []model.AnalyticsEvent
	err    error
}

func (m *MockJobClient) EnqueueAnalytics(_ context.Context, ev model.AnalyticsEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}
