package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/chess-duel/pkg/wire"
	"github.com/valyala/fasthttp"
)

// StatusError is a non-2xx reply from the relay's HTTP side.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay http error: status=%d body=%s", e.Code, e.Body)
}

// StatusClient probes the relay's HTTP endpoints.
type StatusClient struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type StatusOption func(*StatusClient)

func WithTimeout(d time.Duration) StatusOption {
	return func(c *StatusClient) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) StatusOption {
	return func(c *StatusClient) { c.retryMax = max }
}

func NewStatusClient(baseURL string, opts ...StatusOption) *StatusClient {
	c := &StatusClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketInfo calls GET /api/socket.
func (c *StatusClient) SocketInfo(ctx context.Context) (*wire.SocketInfo, error) {
	var info wire.SocketInfo
	if _, err := c.do(ctx, "/api/socket", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats calls GET /stats.
func (c *StatusClient) Stats(ctx context.Context) (*wire.Stats, error) {
	var st wire.Stats
	if _, err := c.do(ctx, "/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Board fetches the PNG preview of a live game.
func (c *StatusClient) Board(ctx context.Context, gameID, orientation string) ([]byte, error) {
	path := "/games/" + url.PathEscape(gameID) + "/board.png"
	if o := strings.TrimSpace(orientation); o != "" {
		path += "?orientation=" + url.QueryEscape(o)
	}
	return c.do(ctx, path, nil)
}

// do issues a GET, retrying transport errors and 5xx with backoff. When out is nil
// the raw body is returned.
func (c *StatusClient) do(ctx context.Context, path string, out any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				body := append([]byte(nil), resp.Body()...)
				if out == nil {
					return body, nil
				}
				if err := json.Unmarshal(body, out); err != nil {
					return nil, fmt.Errorf("decode response: %w", err)
				}
				return body, nil
			}
			err = &StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
			if !shouldRetryStatus(status) {
				return nil, err
			}
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (c *StatusClient) computeDeadline(ctx context.Context) time.Time {
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
	return s[:n] + "..."
}
