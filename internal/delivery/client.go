package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	// ErrDeliveryFailed is returned once every retry attempt has failed
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrOffline is returned when a request fails while the session is offline
	ErrOffline = errors.New("offline")
)

// StatusError reports a non-success HTTP status
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Connectivity is the session's offline flag, updated from host connectivity events
type Connectivity struct {
	offline atomic.Bool
}

func NewConnectivity(online bool) *Connectivity {
	c := &Connectivity{}
	c.offline.Store(!online)
	return c
}

// Set records the last reported connectivity and returns true if it changed
func (c *Connectivity) Set(online bool) bool {
	return c.offline.Swap(!online) != !online
}

func (c *Connectivity) Offline() bool {
	return c.offline.Load()
}

// Policy bounds retries: attempt n waits BaseDelay × n before running
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

var DefaultPolicy = Policy{MaxRetries: 3, BaseDelay: time.Second}

// Backoff returns a linear backoff capped at MaxRetries additional attempts
func (p Policy) Backoff() retry.Backoff {
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n := atomic.AddInt64(&attempt, 1)
		return p.BaseDelay * time.Duration(n), false
	})
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), linear)
}

// Request is a replayable HTTP request. Body is kept verbatim so a queued
// request is delivered byte-for-byte as first attempted.
type Request struct {
	URL    string      `json:"url"`
	Method string      `json:"method"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// JSONRequest builds a POST with a JSON body
func JSONRequest(url string, body []byte) Request {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return Request{URL: url, Method: http.MethodPost, Header: h, Body: body}
}

// Response is a successful delivery result
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs network calls with bounded retry
type Client struct {
	http   *http.Client
	policy Policy
	conn   *Connectivity
	log    *zap.Logger

	attempts atomic.Int64
}

func NewClient(httpClient *http.Client, policy Policy, conn *Connectivity, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if conn == nil {
		conn = NewConnectivity(true)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:   httpClient,
		policy: policy,
		conn:   conn,
		log:    log,
	}
}

// Connectivity returns the flag consulted before every retry
func (c *Client) Connectivity() *Connectivity {
	return c.conn
}

// Attempts returns the number of HTTP attempts issued so far
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Do issues the request, retrying non-success statuses and transport errors
// while attempts remain and the session is online.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := retry.DoValue(ctx, c.policy.Backoff(), func(ctx context.Context) (*Response, error) {
		resp, err := c.once(ctx, req)
		if err == nil {
			return resp, nil
		}
		if c.conn.Offline() {
			return nil, fmt.Errorf("%w: %w", ErrOffline, err)
		}
		c.log.Debug("Delivery attempt failed, retrying", zap.String("url", req.URL), zap.Error(err))
		return nil, retry.RetryableError(err)
	})
	if err != nil {
		if errors.Is(err, ErrOffline) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDeliveryFailed, req.Method, req.URL, err)
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	c.attempts.Add(1)

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: body}
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}
