package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"qualify/internal/conversation"
	"qualify/internal/delivery"
	"qualify/internal/model"
	"qualify/internal/render"

	"go.uber.org/zap"
)

// The handlers below run on the event loop only.

func (w *Widget) boot() {
	w.shell.On(render.ActionOpen, func(string) { w.Open() })
	w.shell.On(render.ActionClose, func(string) { w.Close() })
	w.shell.On(render.ActionAnswer, func(v string) { w.Answer(v) })
	w.shell.On(render.ActionReload, func(string) { go w.Unload() })
	w.render()

	delay := w.opts.AutoOpenDelay
	if delay == 0 {
		delay = desktopOpenDelay
		if w.session.Device.Mobile() {
			delay = mobileOpenDelay
		}
	}
	if delay > 0 {
		w.autoOpen = w.clock.AfterFunc(delay, w.Open)
	}

	w.spawn(w.verify)
	if !w.conn.Offline() {
		w.spawn(w.drain)
	}
}

func (w *Widget) open() {
	if !w.shell.Mounted() {
		return
	}
	if err := w.machine.Open(); err != nil {
		return
	}
	stopTimer(&w.autoOpen)
	w.render()

	device := w.session.Device
	w.spawn(func(ctx context.Context) {
		questions, show := w.fetchQuestions(ctx, device)
		w.post(func() { w.begin(questions, show) })
	})
}

func (w *Widget) begin(questions []model.Question, show bool) {
	if !w.shell.Mounted() {
		return
	}
	if !show {
		w.log.Info("Widget hidden for this visitor")
		w.machine.Close()
		w.teardown()
		return
	}
	if err := w.machine.Begin(questions, w.clock.Now()); err != nil {
		if errors.Is(err, conversation.ErrNoQuestions) {
			w.log.Info("No questions to ask, closing widget")
			w.teardown()
		}
		return
	}
	w.render()
	w.emitter.Emit(model.EventWidgetOpened, nil)
}

func (w *Widget) answer(value string) {
	index := w.machine.State().Index
	a, err := w.machine.Answer(value, w.clock.Now())
	if err != nil {
		return
	}
	w.emitter.Emit(model.EventQuestionAnswered, map[string]interface{}{
		"questionId":    a.QuestionID,
		"answerLength":  utf8.RuneCountInString(a.Answer),
		"questionIndex": index,
	})

	if w.machine.State().Phase == conversation.Submitting {
		w.submit()
		return
	}
	w.render()
}

func (w *Widget) submit() {
	if !w.machine.BeginSubmit() {
		return
	}
	w.render()

	req, err := w.submitRequest()
	if err != nil {
		w.log.Error("Failed to encode submission", zap.Error(err))
		if err := w.machine.Fail(); err == nil {
			w.render()
		}
		return
	}

	if w.conn.Offline() {
		w.queue.Enqueue(req)
		w.savedOffline()
		return
	}

	w.spawn(func(ctx context.Context) {
		resp, err := w.client.Do(ctx, req)
		if err != nil && (errors.Is(err, delivery.ErrOffline) || ctx.Err() != nil) {
			w.queue.Enqueue(req)
		}
		w.post(func() { w.submitted(resp, err) })
	})
}

func (w *Widget) submitted(resp *delivery.Response, err error) {
	if err != nil {
		if errors.Is(err, delivery.ErrOffline) {
			w.savedOffline()
			return
		}
		w.log.Error("Failed to submit responses", zap.Error(err))
		if err := w.machine.Fail(); err == nil {
			w.render()
		}
		return
	}

	var out model.SubmitResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		w.log.Error("Failed to decode submit response", zap.Error(err))
		if err := w.machine.Fail(); err == nil {
			w.render()
		}
		return
	}

	if err := saveSubmission(w.opts.Storage, Submission{
		ResponseID: out.ResponseID,
		Qualified:  out.Qualified,
		Score:      out.Score,
		Timestamp:  w.clock.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		w.log.Debug("Last submission not stored", zap.Error(err))
	}

	if out.CalendlyURL != nil {
		w.calendlyURL = *out.CalendlyURL
	}
	if err := w.machine.Complete(out.Qualified, out.Score); err != nil {
		return
	}
	w.render()
	w.emitter.Emit(model.EventFormCompleted, map[string]interface{}{
		"qualified": out.Qualified,
		"score":     out.Score,
	})
	w.closeAfter(resultCloseDelay)
}

func (w *Widget) savedOffline() {
	if err := w.machine.FailOffline(); err != nil {
		return
	}
	w.log.Info("Submission saved for delivery when back online")
	w.render()
	w.closeAfter(offlineCloseDelay)
}

func (w *Widget) close() {
	send, meta := w.claimAbandon()
	w.machine.Close()
	if send {
		w.emitter.Emit(model.EventWidgetAbandoned, meta)
	} else {
		w.emitter.Emit(model.EventWidgetClosed, nil)
	}
	w.teardown()
}

// claimAbandon reports whether leaving now abandons the conversation, and
// marks the abandon as sent so it is reported at most once
func (w *Widget) claimAbandon() (bool, map[string]interface{}) {
	switch w.machine.State().Phase {
	case conversation.Open, conversation.Asking:
	default:
		return false, nil
	}
	if w.abandonSent {
		return false, nil
	}
	w.abandonSent = true
	return true, map[string]interface{}{
		"questionsAnswered": len(w.machine.Answers()),
		"totalQuestions":    len(w.machine.Questions()),
	}
}

func (w *Widget) refresh() {
	if !w.shell.Mounted() {
		return
	}
	switch w.machine.State().Phase {
	case conversation.Open, conversation.Asking:
		w.render()
	}
}

func (w *Widget) resize(width, height int) {
	w.session.Device.Viewport = model.Viewport{Width: width, Height: height}
	if !w.session.Device.Mobile() || !w.shell.Mounted() {
		return
	}
	if w.machine.State().Phase == conversation.Closed {
		return
	}
	offset := w.viewportHeight - height
	if offset < 0 {
		offset = 0
	}
	w.log.Debug("Viewport changed", zap.Int("width", width), zap.Int("height", height))
	w.shell.Reposition(offset)
}

func (w *Widget) closeAfter(d time.Duration) {
	stopTimer(&w.autoClose)
	w.autoClose = w.clock.AfterFunc(d, func() { w.post(w.teardown) })
}

func (w *Widget) teardown() {
	stopTimer(&w.autoOpen)
	stopTimer(&w.autoClose)
	w.shell.Unmount()
	w.sync()
}

func stopTimer(stop *func() bool) {
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}

// Network calls, run off the event loop.

func (w *Widget) fetchQuestions(ctx context.Context, device model.DeviceInfo) ([]model.Question, bool) {
	if w.conn.Offline() {
		return DefaultQuestions(), true
	}

	body, err := json.Marshal(model.InitRequest{
		APIKey:    w.opts.APIKey,
		VisitorID: w.session.VisitorID,
		PageURL:   w.opts.Page.URL,
		PageTitle: w.opts.Page.Title,
		Referrer:  w.opts.Page.Referrer,
		Device:    device,
		Timezone:  w.opts.Navigator.Timezone(),
		Language:  w.opts.Navigator.Language(),
		Timestamp: w.clock.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return DefaultQuestions(), true
	}

	resp, err := w.client.Do(ctx, delivery.JSONRequest(w.endpoint("init"), body))
	if err != nil {
		w.log.Warn("Failed to initialize, using default questions", zap.Error(err))
		return DefaultQuestions(), true
	}

	var out model.InitResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		w.log.Warn("Unreadable init response, using default questions", zap.Error(err))
		return DefaultQuestions(), true
	}
	if !out.ShowWidget {
		return nil, false
	}
	if out.Questions == nil {
		return DefaultQuestions(), true
	}
	return out.Questions, true
}

func (w *Widget) submitRequest() (delivery.Request, error) {
	now := w.clock.Now()
	body, err := json.Marshal(model.SubmitRequest{
		APIKey:    w.opts.APIKey,
		VisitorID: w.session.VisitorID,
		SessionID: w.session.ID,
		PageURL:   w.opts.Page.URL,
		PageTitle: w.opts.Page.Title,
		Answers:   w.machine.Answers(),
		Device:    w.session.Device,
		TotalTime: w.machine.TotalTime(now).Milliseconds(),
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return delivery.Request{}, err
	}
	return delivery.JSONRequest(w.endpoint("submit"), body), nil
}

// Verify asks the backend to confirm the installation on the page's domain
func (w *Widget) Verify(ctx context.Context) (model.VerifyResponse, error) {
	body, err := json.Marshal(model.VerifyRequest{APIKey: w.opts.APIKey, Domain: w.opts.Page.Hostname})
	if err != nil {
		return model.VerifyResponse{}, err
	}
	resp, err := w.client.Do(ctx, delivery.JSONRequest(w.endpoint("verify"), body))
	if err != nil {
		return model.VerifyResponse{}, fmt.Errorf("failed to verify installation: %w", err)
	}
	var out model.VerifyResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return model.VerifyResponse{}, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return out, nil
}

func (w *Widget) verify(ctx context.Context) {
	out, err := w.Verify(ctx)
	if err != nil {
		w.log.Debug("Installation not verified", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.verified = out.Verified
	w.mu.Unlock()
}
