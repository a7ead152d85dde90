// Package telemetry sends best-effort lifecycle events. Nothing here ever
// blocks a visitor-facing transition or surfaces an error to the visitor.
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"qualify/internal/delivery"
)

const keepAliveTimeout = 5 * time.Second

// ErrBeaconRejected is returned when the host refuses to queue a beacon
var ErrBeaconRejected = errors.New("beacon rejected")

// Beacon is the host's unload-safe send primitive
type Beacon interface {
	SendBeacon(url, contentType string, body []byte) bool
}

// Transport delivers one serialised event
type Transport interface {
	Send(ctx context.Context, url string, body []byte) error
}

// BeaconTransport hands the body to the host as text/plain so no preflight
// request is needed
type BeaconTransport struct {
	Beacon Beacon
}

func (t BeaconTransport) Send(_ context.Context, url string, body []byte) error {
	if !t.Beacon.SendBeacon(url, "text/plain;charset=UTF-8", body) {
		return ErrBeaconRejected
	}
	return nil
}

// KeepAliveTransport posts JSON on a context detached from the caller so
// the request outlives whatever triggered it
type KeepAliveTransport struct {
	Client *http.Client
}

func (t KeepAliveTransport) Send(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keepAliveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &delivery.StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Selector picks a transport each time it is asked. Beacon returns nil when
// the host has no beacon capability at that moment.
type Selector struct {
	Beacon    func() Beacon
	KeepAlive KeepAliveTransport
}

func (s Selector) Transport() Transport {
	if s.Beacon != nil {
		if b := s.Beacon(); b != nil {
			return BeaconTransport{Beacon: b}
		}
	}
	return s.KeepAlive
}
