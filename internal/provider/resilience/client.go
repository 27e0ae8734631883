package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the dependency in logs and the registry.
	Name string

	// Timeout bounds each attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries uint64

	// InitialInterval is the first retry delay.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the retry delay.
	// Default: 2 seconds
	MaxInterval time.Duration

	// Breaker overrides the breaker tuning; Name is taken from the client.
	Breaker BreakerConfig

	// Registry, when set, receives the client on creation and the outcome
	// of every request.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults used for routing providers.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{Name: name}.withDefaults()
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Second
	}
	c.Breaker.Name = c.Name
	c.Breaker = c.Breaker.withDefaults()
	return c
}

// Client is an HTTP client that retries transient failures with exponential
// backoff behind a circuit breaker. 5xx responses and transport errors are
// transient; every other response is returned as is.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	config  ClientConfig
	logger  zerolog.Logger
}

// NewClient creates a resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With().Str("dependency", cfg.Name).Logger()

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker[*http.Response](cfg.Breaker, cfg.Registry, logger), //nolint:bodyclose // type parameter
		config:  cfg,
		logger:  logger,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(c)
	}
	return c
}

// ServerError is a 5xx response from the dependency.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Do sends req, retrying transient failures. When every attempt got a 5xx
// the last response is returned with a nil error so callers can map the
// status themselves. An open breaker fails fast with ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var last *http.Response
	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to the caller
			return c.send(ctx, req)
		})
		if resp != nil {
			if last != nil {
				drain(last)
			}
			last = resp
		}
		if err == nil {
			return nil
		}
		if err = breakerError(c.config.Name, err); errors.Is(err, ErrCircuitOpen) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("wait", wait).Msg("retrying upstream request")
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	c.config.Registry.record(c.config.Name, err)

	var serverErr *ServerError
	switch {
	case err == nil:
		return last, nil
	case errors.As(err, &serverErr) && last != nil:
		return last, nil
	default:
		if last != nil {
			drain(last)
		}
		return nil, err
	}
}

// send performs one attempt. Request bodies are replayed through GetBody so
// POSTs survive retries.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rewinding request body: %w", err))
		}
		clone.Body = body
	}

	resp, err := c.http.Do(clone)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, &ServerError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Name returns the dependency name.
func (c *Client) Name() string { return c.config.Name }

// State returns the breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Counts returns the breaker counts for the current window.
func (c *Client) Counts() gobreaker.Counts { return c.breaker.Counts() }
