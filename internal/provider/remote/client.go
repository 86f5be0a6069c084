// Package remote implements the session manager's provider port against the
// identity server's HTTP API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/edustack/edustack/internal/provider/sessionfile"
	"github.com/edustack/edustack/internal/pubsub"
)

const (
	defaultTimeout = 15 * time.Second
	defaultChannel = "edustack:auth"
	// expiryLeeway refreshes a session slightly before the server would
	// reject it.
	expiryLeeway = 30 * time.Second
)

var (
	// ErrNoSession is returned by authorized calls when nothing is stored.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired is returned when the refresh token is rejected.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is the identity server's error envelope.
type APIError struct {
	Status int       `json:"-"`
	Body   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("identity server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%s, status %d)", e.Body.Message, e.Body.Code, e.Status)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Channel names the pub/sub channel auth events are published on.
	Channel string
}

// Client talks to the identity server. The current session is persisted in a
// session file so separate invocations of a process share it.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	file    *sessionfile.File
	events  pubsub.Provider
	channel string
	now     func() time.Time

	refreshMu sync.Mutex
}

// New creates a Client. When events is nil an in-process provider is used.
func New(cfg Config, file *sessionfile.File, events pubsub.Provider) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL must have a host, got: %s", cfg.BaseURL)
	}
	if file == nil {
		return nil, errors.New("session file is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	channel := cfg.Channel
	if channel == "" {
		channel = defaultChannel
	}
	if events == nil {
		events = pubsub.NewLocalProvider()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		breaker: newBreaker("identity-server"),
		file:    file,
		events:  events,
		channel: channel,
		now:     time.Now,
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// send performs one request through the circuit breaker. Network errors and
// 5xx responses count as breaker failures; any non-2xx response is returned
// as *APIError.
func (c *Client) send(ctx context.Context, method, path, bearer string, body, result any) (*resty.Response, error) {
	v, err := c.breaker.Execute(func() (any, error) {
		req := c.http.R().SetContext(ctx).SetError(&APIError{})
		if body != nil {
			req.SetBody(body)
		}
		if result != nil {
			req.SetResult(result)
		}
		if bearer != "" {
			req.SetAuthToken(bearer)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return resp, responseError(resp)
		}
		return resp, nil
	})
	resp, _ := v.(*resty.Response)
	if err != nil {
		return resp, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return resp, responseError(resp)
	}
	return resp, nil
}

func responseError(resp *resty.Response) error {
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
