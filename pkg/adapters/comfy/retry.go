package comfy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// maxErrorBody bounds the response text kept on a StatusError.
const maxErrorBody = 512

type request struct {
	verb        string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

func (r *response) statusError(req request) *domain.StatusError {
	body := bytes.TrimSpace(r.body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &domain.StatusError{Method: req.method, Path: req.path, Code: r.code, Body: string(body)}
}

// do sends req, retrying transient failures according to the client policy.
// Non-transient statuses are returned as a response for the caller to judge.
// When retries run out on a transient status the last *domain.StatusError is
// returned.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if c.Closed() {
		return nil, domain.ErrClientClosed
	}

	var (
		attempt int
		result  *response
	)
	operation := func() error {
		attempt++
		if attempt > 1 {
			c.metrics.ObserveRetry(req.verb)
		}
		res, err := c.attempt(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return err
		}
		if se := res.statusError(req); se.Retryable() {
			return se
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying request",
			"verb", req.verb,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"wait", wait,
			"err", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.retry.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.Multiplier = c.retry.Multiplier
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// attempt performs a single round trip bounded by the request timeout.
func (c *Client) attempt(ctx context.Context, req request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.verb, 0, time.Since(start))
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	c.metrics.ObserveRequest(req.verb, httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("request done",
		"verb", req.verb,
		"method", req.method,
		"path", req.path,
		"status", httpResp.StatusCode,
		"bytes", len(data),
	)
	return &response{code: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// permanentStatus reports a response the caller must not treat as success.
func permanentStatus(res *response, req request) error {
	if res.code >= 200 && res.code < 300 {
		return nil
	}
	return res.statusError(req)
}

