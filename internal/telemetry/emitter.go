package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"qualify/internal/delivery"
	"qualify/internal/model"

	"go.uber.org/zap"
)

// Session identifies who the events belong to
type Session struct {
	Endpoint  string
	APIKey    string
	VisitorID string
	SessionID string
	PageURL   string
	Device    model.DeviceInfo
}

type Emitter struct {
	session  Session
	selector Selector
	conn     *delivery.Connectivity
	queue    *delivery.Queue
	now      func() time.Time
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewEmitter creates an emitter. Events raised while conn reports offline are
// appended to queue instead of being sent.
func NewEmitter(session Session, selector Selector, conn *delivery.Connectivity, queue *delivery.Queue, now func() time.Time, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if conn == nil {
		conn = delivery.NewConnectivity(true)
	}
	return &Emitter{
		session:  session,
		selector: selector,
		conn:     conn,
		queue:    queue,
		now:      now,
		log:      log,
	}
}

// Event builds the wire event, adding device, browser and timestamp to metadata
func (e *Emitter) Event(t model.EventType, metadata map[string]interface{}) model.TrackEvent {
	meta := make(map[string]interface{}, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["device"] = string(e.session.Device.Type)
	meta["browser"] = e.session.Device.Browser
	meta["timestamp"] = e.now().UTC().Format(time.RFC3339Nano)

	return model.TrackEvent{
		APIKey:    e.session.APIKey,
		VisitorID: e.session.VisitorID,
		SessionID: e.session.SessionID,
		EventType: t,
		PageURL:   e.session.PageURL,
		Metadata:  meta,
	}
}

// Emit sends the event in the background and returns immediately
func (e *Emitter) Emit(t model.EventType, metadata map[string]interface{}) {
	body, ok := e.encode(t, metadata)
	if !ok {
		return
	}
	if e.conn.Offline() {
		e.enqueue(body)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.send(context.Background(), t, body)
	}()
}

// EmitSync sends the event before returning, for use while the page unloads
func (e *Emitter) EmitSync(ctx context.Context, t model.EventType, metadata map[string]interface{}) {
	body, ok := e.encode(t, metadata)
	if !ok {
		return
	}
	if e.conn.Offline() {
		e.enqueue(body)
		return
	}
	e.send(ctx, t, body)
}

// Wait blocks until background sends have finished
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) encode(t model.EventType, metadata map[string]interface{}) ([]byte, bool) {
	body, err := json.Marshal(e.Event(t, metadata))
	if err != nil {
		e.log.Debug("Dropping unencodable event", zap.String("event", string(t)), zap.Error(err))
		return nil, false
	}
	return body, true
}

func (e *Emitter) send(ctx context.Context, t model.EventType, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Debug("Telemetry transport panicked", zap.Any("panic", r))
		}
	}()
	if err := e.selector.Transport().Send(ctx, e.session.Endpoint, body); err != nil {
		e.log.Debug("Telemetry event not delivered", zap.String("event", string(t)), zap.Error(err))
	}
}

func (e *Emitter) enqueue(body []byte) {
	if e.queue == nil {
		return
	}
	e.queue.Enqueue(delivery.JSONRequest(e.session.Endpoint, body))
}
