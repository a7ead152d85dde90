package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const queueKey = "qualify_offline_queue"

// Store persists the queue across reloads. probe.Storage satisfies it.
type Store interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
}

// DrainResult summarises one drain pass
type DrainResult struct {
	Delivered int
	Dropped   int
	Remaining int
}

// Queue is a FIFO of requests awaiting connectivity. Entries are never
// reordered or deduplicated.
type Queue struct {
	mu       sync.Mutex
	entries  []Request
	draining bool
	store    Store
	log      *zap.Logger
}

// NewQueue creates a queue, restoring persisted entries when store is set
func NewQueue(store Store, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{store: store, log: log}
	q.restore()
	return q
}

// Enqueue appends req to the tail of the queue
func (q *Queue) Enqueue(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, req)
	q.persistLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the pending requests in delivery order
func (q *Queue) Entries() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.entries))
	copy(out, q.entries)
	return out
}

// Drain delivers queued requests strictly in FIFO order. Each entry is removed
// after its delivery attempt; an entry that still fails after the client's
// retries is dropped and logged (accepted loss). Draining stops, keeping the
// head entry, if the session goes offline again or ctx ends. An entry the
// server accepted just before ctx ended stays queued and is sent again, so
// redelivery is at-least-once. Concurrent calls return immediately while
// another drain is running.
func (q *Queue) Drain(ctx context.Context, client *Client) DrainResult {
	q.mu.Lock()
	if q.draining {
		n := len(q.entries)
		q.mu.Unlock()
		return DrainResult{Remaining: n}
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	var res DrainResult
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return res
		}
		head := q.entries[0]
		q.mu.Unlock()

		_, err := client.Do(ctx, head)
		if err != nil && (errors.Is(err, ErrOffline) || ctx.Err() != nil) {
			res.Remaining = q.Len()
			return res
		}

		q.mu.Lock()
		q.entries = q.entries[1:]
		q.persistLocked()
		q.mu.Unlock()

		if err != nil {
			q.log.Error("Failed to deliver queued request", zap.String("url", head.URL), zap.Error(err))
			res.Dropped++
			continue
		}
		res.Delivered++
	}
}

func (q *Queue) restore() {
	if q.store == nil {
		return
	}
	raw, ok, err := q.store.GetItem(queueKey)
	if err != nil || !ok || raw == "" {
		return
	}
	var entries []Request
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		q.log.Warn("Discarding unreadable offline queue", zap.Error(err))
		return
	}
	q.entries = entries
}

func (q *Queue) persistLocked() {
	if q.store == nil {
		return
	}
	data, err := json.Marshal(q.entries)
	if err != nil {
		return
	}
	if err := q.store.SetItem(queueKey, string(data)); err != nil {
		q.log.Debug("Offline queue not persisted", zap.Error(err))
	}
}
