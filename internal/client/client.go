package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/moonbridge/internal/api/middleware"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/moonbridge/internal/shared/types"
)

// APIError is a non-2xx answer from the host.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("host api: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("host api: %d %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns client defaults for a local host.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://127.0.0.1:8080",
		Timeout:    10 * time.Second,
		RetryCount: 2,
	}
}

// Client talks to a host's introspection API.
type Client struct {
	base    string
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	mu      sync.RWMutex
}

// New creates a client for the host at cfg.BaseURL.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	r := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "hostctl/1.0").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests
		})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	breaker := resilience.New("host-api", resilience.Settings{
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &Client{base: base, resty: r, limiter: limiter, breaker: breaker}
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetHeader(key, value)
}

// request creates a request tagged with a fresh request id once the rate
// limiter admits it.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resty.R().
		SetContext(ctx).
		SetHeader(middleware.RequestIDHeader, uuid.NewString()), nil
}

// call runs one request behind the breaker and decodes its JSON result.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (T, error) {
		var (
			out    T
			failed types.ErrorResponse
		)
		req, err := c.request(ctx)
		if err != nil {
			return out, err
		}
		req.SetResult(&out).SetError(&failed)
		if body != nil {
			req.SetBody(body)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return out, err
		}
		if resp.IsError() {
			msg := failed.Error
			if msg == "" {
				msg = http.StatusText(resp.StatusCode())
			}
			rid := failed.RequestID
			if rid == "" {
				rid = resp.Header().Get(middleware.RequestIDHeader)
			}
			return out, &APIError{Status: resp.StatusCode(), Message: msg, RequestID: rid}
		}
		return out, nil
	})
}

// Health fetches the host status. A failed or closed surface answers 503
// with a Health body, which is returned without an error.
func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var h types.Health
	req, err := c.request(ctx)
	if err != nil {
		return h, err
	}
	resp, err := req.SetResult(&h).SetError(&h).Get("/health")
	if err != nil {
		return h, err
	}
	if code := resp.StatusCode(); code != http.StatusOK && code != http.StatusServiceUnavailable {
		return h, &APIError{Status: code, Message: http.StatusText(code)}
	}
	return h, nil
}

// Types lists registered classes.
func (c *Client) Types(ctx context.Context) ([]types.TypeInfo, error) {
	list, err := call[types.TypeList](ctx, c, http.MethodGet, "/types", nil)
	return list.Types, err
}

// Type fetches one registered class with its ancestry.
func (c *Client) Type(ctx context.Context, name string) (types.TypeDetail, error) {
	return call[types.TypeDetail](ctx, c, http.MethodGet, "/types/"+url.PathEscape(name), nil)
}

// Resolve asks the host to resolve a catalog class.
func (c *Client) Resolve(ctx context.Context, name string) (types.TypeDetail, error) {
	return call[types.TypeDetail](ctx, c, http.MethodPost, "/types/resolve", types.ResolveRequest{Name: name})
}

// Classes lists the host's catalog.
func (c *Client) Classes(ctx context.Context) ([]string, error) {
	list, err := call[types.ClassList](ctx, c, http.MethodGet, "/classes", nil)
	return list.Classes, err
}

// Scriptable lists objects and createable aliases visible to page script.
func (c *Client) Scriptable(ctx context.Context) (types.Scriptable, error) {
	return call[types.Scriptable](ctx, c, http.MethodGet, "/scriptable", nil)
}

// Navigation returns the page's navigation journal state.
func (c *Client) Navigation(ctx context.Context) (string, error) {
	nav, err := call[types.Navigation](ctx, c, http.MethodGet, "/navigation", nil)
	return nav.State, err
}

// SetNavigation stores a navigation journal state.
func (c *Client) SetNavigation(ctx context.Context, state string) (string, error) {
	nav, err := call[types.Navigation](ctx, c, http.MethodPut, "/navigation", types.Navigation{State: state})
	return nav.State, err
}

// Metrics returns the Prometheus exposition text.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.Get("/metrics")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	}
	return resp.String(), nil
}

// Events streams frames to fn until ctx is done, the server closes the
// stream or fn returns an error. fn sees the welcome frame first, after
// which the subscription is live, then one frame per registration.
func (c *Client) Events(ctx context.Context, fn func(types.WSMessage) error) error {
	u, err := url.Parse(c.base + "/events")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set(middleware.RequestIDHeader, uuid.NewString())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		switch msg.Type {
		case types.WSWelcome, types.WSRegistered:
			if err := fn(msg); err != nil {
				return err
			}
		case types.WSError:
			return fmt.Errorf("event stream: %s", msg.Message)
		}
	}
}
