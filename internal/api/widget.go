package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"qualify/internal/model"
	"qualify/internal/schema"
	"qualify/internal/service"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// decode reads a widget request body, checks it against the payload schema
// and unmarshals it into v. It writes the error response itself.
func (d *Dependencies) decode(w http.ResponseWriter, r *http.Request, p schema.Payload, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body", d.Log)
		return false
	}

	if err := d.Schema.ValidatePayload(r.Context(), p, body); err != nil {
		if errors.Is(err, schema.ErrMalformed) {
			WriteError(w, http.StatusBadRequest, "invalid_format", "Invalid JSON body", d.Log)
		} else {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
		}
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_format", err.Error(), d.Log)
		return false
	}
	return true
}

func (d *Dependencies) widgetError(w http.ResponseWriter, err error) {
	var limitErr *service.UsageLimitError
	switch {
	case errors.Is(err, service.ErrInvalidAPIKey):
		WriteError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key", d.Log)
	case errors.As(err, &limitErr):
		d.Log.Warn("Lead limit reached", zap.Int64("limit", limitErr.Limit), zap.Int64("used", limitErr.Used))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       "usage_limit_exceeded",
			"message":     "Monthly lead limit reached",
			"limit":       limitErr.Limit,
			"used":        limitErr.Used,
			"upgrade_url": "/pricing",
		})
	case errors.Is(err, service.ErrNoAnswers), errors.Is(err, service.ErrMissingParams):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), d.Log)
	}
}

func (d *Dependencies) widgetInit(w http.ResponseWriter, r *http.Request) {
	var req model.InitRequest
	if !d.decode(w, r, schema.PayloadInit, &req) {
		return
	}

	resp, err := d.Widget.Init(r.Context(), service.InitInput{
		InitRequest: req,
		Referrer:    r.Header.Get("Referer"),
	})
	if err != nil {
		d.widgetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) widgetSubmit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if !d.decode(w, r, schema.PayloadSubmit, &req) {
		return
	}

	resp, err := d.Widget.Submit(r.Context(), service.SubmitInput{
		SubmitRequest: req,
		UserAgent:     r.UserAgent(),
		Referrer:      r.Header.Get("Referer"),
	})
	if err != nil {
		d.widgetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// widgetTrack accepts beacons sent as text/plain as well as JSON. Failures
// past authentication are logged and still acknowledged so the page never
// retries a beacon.
func (d *Dependencies) widgetTrack(w http.ResponseWriter, r *http.Request) {
	var ev model.TrackEvent
	if !d.decode(w, r, schema.PayloadTrack, &ev) {
		return
	}

	if d.TrackLimiter != nil && !d.TrackLimiter.Allow(ev.APIKey) {
		WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many events", d.Log)
		return
	}

	err := d.Widget.Track(r.Context(), service.TrackInput{
		TrackEvent: ev,
		UserAgent:  r.UserAgent(),
		IP:         clientIP(r),
		Referrer:   r.Header.Get("Referer"),
	})
	if errors.Is(err, service.ErrInvalidAPIKey) {
		d.widgetError(w, err)
		return
	}
	if err != nil {
		d.Log.Error("Track failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, model.TrackResponse{Success: true})
}

func (d *Dependencies) trackHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Dependencies) widgetVerify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyRequest
	if !d.decode(w, r, schema.PayloadVerify, &req) {
		return
	}

	resp, err := d.Widget.Verify(r.Context(), service.VerifyInput{
		VerifyRequest: req,
		UserAgent:     r.UserAgent(),
		IP:            clientIP(r),
	})
	if err != nil {
		d.widgetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP has
// already rewritten when the server sits behind a proxy
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
