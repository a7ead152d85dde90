// Package widget wires the shell, probe, delivery, conversation, render and
// telemetry packages into one embeddable widget instance.
package widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qualify/internal/conversation"
	"qualify/internal/delivery"
	"qualify/internal/model"
	"qualify/internal/probe"
	"qualify/internal/render"
	"qualify/internal/shell"
	"qualify/internal/telemetry"

	"go.uber.org/zap"
)

// ErrMissingAPIKey is returned by Start when no API key is configured
var ErrMissingAPIKey = errors.New("api key is required")

const (
	DefaultAPIBase = "http://localhost:3000"

	desktopOpenDelay  = 3 * time.Second
	mobileOpenDelay   = 5 * time.Second
	resultCloseDelay  = 3 * time.Second
	offlineCloseDelay = 5 * time.Second
)

// Page describes the host page the widget is embedded in
type Page struct {
	URL      string
	Title    string
	Referrer string
	Hostname string
}

// Options configures a widget instance
type Options struct {
	APIKey     string
	APIBase    string
	Host       shell.Host
	Navigator  probe.Navigator
	Storage    probe.Storage
	Page       Page
	HTTPClient *http.Client
	// Beacon reports the host's beacon capability at call time, nil when absent
	Beacon func() telemetry.Beacon
	Policy delivery.Policy
	// AutoOpenDelay overrides the device default; negative disables auto-open
	AutoOpenDelay time.Duration
	Clock         Clock
	Log           *zap.Logger
}

// Session is the per-page-load context
type Session struct {
	ID        string
	VisitorID string
	StartTime time.Time
	Device    model.DeviceInfo
}

// Widget is one mounted widget. All conversation state is owned by a single
// event loop goroutine; public methods post work to it.
type Widget struct {
	opts    Options
	log     *zap.Logger
	clock   Clock
	shell   *shell.Shell
	machine *conversation.Machine
	conn    *delivery.Connectivity
	client  *delivery.Client
	queue   *delivery.Queue
	emitter *telemetry.Emitter
	session Session

	events  chan func()
	done    chan struct{}
	exited  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	snapshot conversation.State
	verified bool
	stopOnce sync.Once

	// loop-owned
	autoOpen       func() bool
	autoClose      func() bool
	calendlyURL    string
	abandonSent    bool
	viewportHeight int
}

// New creates a widget. Nothing touches the host until Start.
func New(opts Options) *Widget {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	if opts.Storage == nil {
		opts.Storage = probe.NewMemoryStorage()
	}
	if opts.Navigator == nil {
		opts.Navigator = probe.StaticNavigator{}
	}
	if opts.Policy == (delivery.Policy{}) {
		opts.Policy = delivery.DefaultPolicy
	}
	if opts.Page.Hostname == "" {
		if u, err := url.Parse(opts.Page.URL); err == nil {
			opts.Page.Hostname = u.Hostname()
		}
	}

	conn := delivery.NewConnectivity(opts.Navigator.Online())
	return &Widget{
		opts:    opts,
		log:     opts.Log,
		clock:   opts.Clock,
		shell:   shell.New(opts.Host, opts.Log),
		machine: conversation.New(),
		conn:    conn,
		client:  delivery.NewClient(opts.HTTPClient, opts.Policy, conn, opts.Log),
		queue:   delivery.NewQueue(opts.Storage, opts.Log),
		events:  make(chan func(), 16),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Start mounts the widget, starts its event loop and arms auto-open
func (w *Widget) Start(ctx context.Context) error {
	if strings.TrimSpace(w.opts.APIKey) == "" {
		w.log.Error("Widget not started", zap.Error(ErrMissingAPIKey))
		return ErrMissingAPIKey
	}
	if w.started.Load() {
		return nil
	}

	device := probe.DetectDevice(w.opts.Navigator)
	if err := w.shell.Mount(device.Mobile()); err != nil {
		w.log.Warn("Widget not mounted", zap.Error(err))
		return fmt.Errorf("failed to mount widget: %w", err)
	}

	w.session = Session{
		ID:        probe.NewSessionID(),
		VisitorID: probe.VisitorID(w.opts.Storage),
		StartTime: w.clock.Now(),
		Device:    device,
	}
	w.viewportHeight = device.Viewport.Height
	w.emitter = telemetry.NewEmitter(telemetry.Session{
		Endpoint:  w.endpoint("track"),
		APIKey:    w.opts.APIKey,
		VisitorID: w.session.VisitorID,
		SessionID: w.session.ID,
		PageURL:   w.opts.Page.URL,
		Device:    device,
	}, telemetry.Selector{
		Beacon:    w.opts.Beacon,
		KeepAlive: telemetry.KeepAliveTransport{Client: w.opts.HTTPClient},
	}, w.conn, w.queue, w.clock.Now, w.log)

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started.Store(true)
	go w.run()
	w.post(w.boot)

	w.log.Info("Widget started",
		zap.String("visitor_id", w.session.VisitorID),
		zap.String("session_id", w.session.ID),
		zap.String("device", string(device.Type)))
	return nil
}

// Stop tears the widget down and waits for in-flight network calls. Requests
// interrupted by Stop are kept in the persisted offline queue.
func (w *Widget) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		close(w.done)
		if w.cancel != nil {
			w.cancel()
		}
		// Handlers may still be spawning work until the loop is gone
		if w.started.Load() {
			<-w.exited
		}
		w.wg.Wait()
		if w.emitter != nil {
			w.emitter.Wait()
		}
		w.shell.Unmount()
	})
}

// Open opens the conversation panel
func (w *Widget) Open() { w.post(w.open) }

// Answer answers the current question
func (w *Widget) Answer(value string) { w.post(func() { w.answer(value) }) }

// Submit submits the collected answers. Only the first call while
// submitting has any effect.
func (w *Widget) Submit() { w.post(w.submit) }

// Close closes the widget at the visitor's request
func (w *Widget) Close() { w.post(w.close) }

// Resize reports a visual viewport change
func (w *Widget) Resize(width, height int) {
	w.post(func() { w.resize(width, height) })
}

// SetOnline reports a connectivity change. Coming back online drains the
// offline queue.
func (w *Widget) SetOnline(online bool) {
	if !w.conn.Set(online) {
		return
	}
	w.log.Info("Connectivity changed", zap.Bool("online", online))
	w.post(w.refresh)
	if online {
		w.spawn(w.drain)
	}
}

// Unload is called as the host page goes away. A conversation opened but
// not finished is reported as abandoned exactly once, before Unload returns.
func (w *Widget) Unload() {
	type abandon struct {
		send bool
		meta map[string]interface{}
	}
	decided := make(chan abandon, 1)
	if w.post(func() {
		send, meta := w.claimAbandon()
		decided <- abandon{send, meta}
	}) {
		var a abandon
		select {
		case a = <-decided:
		case <-w.exited:
			// The loop may have run the check just before exiting
			select {
			case a = <-decided:
			default:
			}
		}
		if a.send {
			w.emitter.EmitSync(w.ctx, model.EventWidgetAbandoned, a.meta)
		}
	}
	w.Stop()
}

// State returns the last rendered conversation state
func (w *Widget) State() conversation.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Mounted reports whether the widget is attached to the host
func (w *Widget) Mounted() bool {
	return w.shell.Mounted()
}

// Verified reports whether the backend confirmed the installation
func (w *Widget) Verified() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verified
}

// SessionID returns the identifier of this page load
func (w *Widget) SessionID() string {
	return w.session.ID
}

// VisitorID returns the persistent visitor identifier
func (w *Widget) VisitorID() string {
	return w.session.VisitorID
}

// Pending returns the number of requests waiting for connectivity
func (w *Widget) Pending() int {
	return w.queue.Len()
}

// run is the widget's event loop
func (w *Widget) run() {
	defer close(w.exited)
	for {
		select {
		case fn := <-w.events:
			w.safely(fn)
		case <-w.done:
			return
		}
	}
}

func (w *Widget) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Widget event handler panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// post hands fn to the event loop. It reports false once the widget stopped.
func (w *Widget) post(fn func()) bool {
	if !w.started.Load() {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.events <- fn:
		return true
	case <-w.done:
		return false
	}
}

// spawn runs fn in the background, tracked by Stop
func (w *Widget) spawn(fn func(ctx context.Context)) {
	w.mu.Lock()
	if w.stopped || !w.started.Load() {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		fn(w.ctx)
	}()
}

func (w *Widget) endpoint(name string) string {
	return w.opts.APIBase + "/api/widget/" + name
}

func (w *Widget) drain(ctx context.Context) {
	if w.queue.Len() == 0 {
		return
	}
	res := w.queue.Drain(ctx, w.client)
	w.log.Info("Offline queue drained",
		zap.Int("delivered", res.Delivered),
		zap.Int("dropped", res.Dropped),
		zap.Int("remaining", res.Remaining))
}

func (w *Widget) render() {
	st := w.machine.State()
	view := render.View{
		Phase:       st.Phase,
		Index:       st.Index,
		Total:       len(w.machine.Questions()),
		Offline:     w.conn.Offline(),
		CalendlyURL: w.calendlyURL,
		APIKey:      w.opts.APIKey,
	}

	answers := w.machine.Answers()
	switch st.Phase {
	case conversation.Asking:
		view.Question, _ = w.machine.Current()
		if len(answers) > 0 {
			view.PreviousAnswer = answers[len(answers)-1].Answer
		}
	case conversation.Submitting:
		qs := w.machine.Questions()
		view.Index = len(qs) - 1
		view.Question = qs[view.Index]
		if len(answers) > 1 {
			view.PreviousAnswer = answers[len(answers)-2].Answer
		}
	}

	w.shell.Replace(render.Render(view))
	w.sync()
}

func (w *Widget) sync() {
	w.mu.Lock()
	w.snapshot = w.machine.State()
	w.mu.Unlock()
}
