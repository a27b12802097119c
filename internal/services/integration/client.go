package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/sales/pkg/retry"
)

// ClientConfig describes one downstream HTTP service.
type ClientConfig struct {
	Name             string
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}

// Transient reports whether repeating the request may succeed.
func (e *StatusError) Transient() bool {
	return e.Status >= fasthttp.StatusInternalServerError || e.Status == fasthttp.StatusTooManyRequests
}

// httpClient is the shared transport of the CRM and inventory clients: one
// fasthttp client, a per-call timeout, retries for transient failures and a
// circuit breaker that fails fast while the service is down.
type httpClient struct {
	name    string
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	breaker *gobreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.Logger
}

func newHTTPClient(cfg ClientConfig, logger *zap.Logger) *httpClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("service", cfg.Name))

	c := &httpClient{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			Name:                     "sales-service",
			ReadTimeout:              cfg.Timeout,
			WriteTimeout:             cfg.Timeout,
			NoDefaultUserAgentHeader: true,
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	c.retry = retry.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.Timeout,
		Retryable:  isTransient,
		Exhausted:  errRetriesExhausted,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Debug("retrying downstream call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		},
	}
	return c
}

var errRetriesExhausted = errors.New("downstream call retries exhausted")

// do sends body as JSON and returns the response status. Statuses listed in
// accept are not errors; out is decoded only for 2xx responses.
func (c *httpClient) do(ctx context.Context, method, path string, body, out interface{}, accept ...int) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("marshal %s request: %w", c.name, err)
		}
	}

	return retry.DoValue(ctx, c.retry, func(ctx context.Context) (int, error) {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.send(ctx, method, path, payload, out, accept)
		})
		if err != nil {
			return 0, err
		}
		return result.(int), nil
	})
}

func (c *httpClient) send(ctx context.Context, method, path string, payload []byte, out interface{}, accept []int) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, &transportError{service: c.name, err: err}
	}

	status := resp.StatusCode()
	for _, code := range accept {
		if status == code {
			return status, nil
		}
	}
	if status < 200 || status >= 300 {
		return status, &StatusError{Service: c.name, Status: status, Body: string(resp.Body())}
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return status, fmt.Errorf("decode %s response: %w", c.name, err)
		}
	}
	return status, nil
}

type transportError struct {
	service string
	err     error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("call %s: %v", e.service, e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}
