// Package live queries the per-station live price API and turns its
// payloads into canonical observations.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"fuel-price-watch/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxRetries      = 2
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultMaxDelay        = 5 * time.Second
	DefaultBackoffMult     = 2.0
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultBreakerHalfOpen = 1
	maxErrorBodyBytes      = 512
	stationPathTemplate    = "/registry/station/%d"
)

var (
	// ErrNoData is returned when the API has no record for a station.
	ErrNoData = errors.New("no live data")

	// ErrUnexpectedStatus is returned for non-retryable non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected live API status")
)

// Client is the live station API client.
type Client struct {
	baseURL         string
	client          *http.Client
	timeout         time.Duration
	maxRetries      int
	retryDelay      time.Duration
	maxDelay        time.Duration
	backoffMult     float64
	breakerFailures uint32
	breakerTimeout  time.Duration
	log             logrus.FieldLogger
	breaker         *gobreaker.CircuitBreaker[*StationRecord]
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. It applies to a client given
// with WithHTTPClient too, whichever option comes first.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client. The client is copied, never modified.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithBreaker sets the consecutive failures that open the circuit breaker
// and how long it stays open.
func WithBreaker(failures int, openFor time.Duration) ClientOption {
	return func(c *Client) {
		if failures > 0 {
			c.breakerFailures = uint32(failures)
		}
		if openFor > 0 {
			c.breakerTimeout = openFor
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new live API client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		maxRetries:      DefaultMaxRetries,
		retryDelay:      DefaultRetryDelay,
		maxDelay:        DefaultMaxDelay,
		backoffMult:     DefaultBackoffMult,
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.client == nil:
		timeout := c.timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		c.client = &http.Client{Timeout: timeout}
	case c.timeout > 0:
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}

	c.breaker = gobreaker.NewCircuitBreaker[*StationRecord](gobreaker.Settings{
		Name:        "live-api",
		MaxRequests: DefaultBreakerHalfOpen,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
			observability.SetLiveBreakerState(stateValue(to), to == gobreaker.StateOpen)
		},
	})
	return c
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// GetStation retrieves the live record of one station.
// Returns ErrNoData when the API does not know the station, or
// gobreaker.ErrOpenState while the breaker is open.
func (c *Client) GetStation(ctx context.Context, stationID int64) (*StationRecord, error) {
	start := time.Now()
	rec, err := c.breaker.Execute(func() (*StationRecord, error) {
		return c.call(ctx, stationID)
	})
	if err == nil && rec == nil {
		err = ErrNoData
	}
	observability.RecordLiveFetch(outcomeOf(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// call performs the GET with retries and exponential backoff. A 404 yields
// nil, nil so that an unknown station does not count as a breaker failure.
func (c *Client) call(ctx context.Context, stationID int64) (*StationRecord, error) {
	url := c.baseURL + fmt.Sprintf(stationPathTemplate, stationID)

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(body))
			continue
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			// Other client errors are not retried
			return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(body))
		}

		var rec StationRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal station %d: %w", stationID, err)
		}
		return &rec, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return string(body)
}
