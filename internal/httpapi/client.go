package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-coach/pkg/coachdto"
)

// APIError is a non-2xx answer from the coach API.
type APIError struct {
	Status int
	coachdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coach api error: status=%d code=%s msg=%s", e.Status, e.Code, truncate(e.Message, 256))
}

// Client talks to a coach server. Only GETs are retried.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) ClientOption {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the network dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) ClientOption {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateSession(ctx context.Context) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, "/sessions", nil)
}

func (c *Client) Session(ctx context.Context, id string) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodGet, sessionPath(id, ""), nil)
}

func (c *Client) SelectSide(ctx context.Context, id, color string) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "side"), coachdto.SelectSideRequest{Color: color})
}

func (c *Client) Move(ctx context.Context, id string, req coachdto.MoveRequest) (*coachdto.MoveResponse, error) {
	return call[coachdto.MoveResponse](ctx, c, fasthttp.MethodPost, sessionPath(id, "moves"), req)
}

func (c *Client) Jump(ctx context.Context, id string, index int) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "jump"), coachdto.JumpRequest{Index: index})
}

func (c *Client) Back(ctx context.Context, id string) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "back"), nil)
}

func (c *Client) Forward(ctx context.Context, id string) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "forward"), nil)
}

func (c *Client) Reset(ctx context.Context, id string) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "reset"), nil)
}

func (c *Client) SetSuggestions(ctx context.Context, id string, enabled bool) (*coachdto.Session, error) {
	return call[coachdto.Session](ctx, c, fasthttp.MethodPost, sessionPath(id, "suggestions"), coachdto.ToggleRequest{Enabled: enabled})
}

func (c *Client) Tap(ctx context.Context, id, square string) (*coachdto.IntentResponse, error) {
	return call[coachdto.IntentResponse](ctx, c, fasthttp.MethodPost, sessionPath(id, "tap"), coachdto.TapRequest{Square: square})
}

func (c *Client) Press(ctx context.Context, id string, req coachdto.PointerRequest) (*coachdto.IntentResponse, error) {
	return call[coachdto.IntentResponse](ctx, c, fasthttp.MethodPost, sessionPath(id, "press"), req)
}

func (c *Client) Release(ctx context.Context, id string, req coachdto.PointerRequest) (*coachdto.IntentResponse, error) {
	return call[coachdto.IntentResponse](ctx, c, fasthttp.MethodPost, sessionPath(id, "release"), req)
}

func (c *Client) Export(ctx context.Context, id string) (*coachdto.ExportResponse, error) {
	return call[coachdto.ExportResponse](ctx, c, fasthttp.MethodGet, sessionPath(id, "pgn"), nil)
}

func (c *Client) Archive(ctx context.Context, id string) (*coachdto.ArchivedGame, error) {
	return call[coachdto.ArchivedGame](ctx, c, fasthttp.MethodPost, sessionPath(id, "archive"), nil)
}

func (c *Client) RecentGames(ctx context.Context, limit int) ([]coachdto.ArchivedGame, error) {
	var out []coachdto.ArchivedGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/games?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.doJSON(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionPath(id, action string) string {
	p := "/sessions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if method == fasthttp.MethodGet && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil && len(resp.Body()) > 0 {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("decode response: %w", err)
					}
				}
				return nil
			}
			apiErr := &APIError{Status: status}
			_ = json.Unmarshal(resp.Body(), &apiErr.DomainError)
			if !shouldRetryStatus(status) {
				return apiErr
			}
			err = apiErr
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and caps at 3.2s.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// InmemoryDial adapts a listener-backed dial func for WithDial.
func InmemoryDial(dial func() (net.Conn, error)) fasthttp.DialFunc {
	return func(string) (net.Conn, error) { return dial() }
}
