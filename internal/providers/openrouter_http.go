package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const maxResponseBytes = 16 << 20

var errEmptyChoices = errors.New("empty choices in response")

// apiError is an error reported inside a 200 response body.
type apiError struct {
	code      string
	message   string
	retryable bool
}

func (e *apiError) Error() string {
	return fmt.Sprintf("OpenRouter API error (%s): %s", e.code, e.message)
}

// doRequest posts body to OpenRouter, retrying transient failures. It returns
// the number of tries made.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, body *openRouterRequest) (*openRouterResponse, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	tries := 0
	resp, err := retry.DoWithData(
		func() (*openRouterResponse, error) {
			tries++
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			return c.post(ctx, path, payload)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(max(c.retryDelay/2, time.Millisecond)),
		retry.DelayType(retryAfterDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, tries, err
	}
	return resp, tries, nil
}

func (c *OpenRouterClient) post(ctx context.Context, path string, payload []byte) (*openRouterResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/ocrion")
	req.Header.Set("X-Title", "ocrion")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{
			Provider:   "OpenRouter",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if se.StatusCode == http.StatusTooManyRequests {
			c.limiter.Record429(se.RetryAfter)
		}
		return nil, se
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if orResp.Error != nil {
		code := fmt.Sprintf("%v", orResp.Error.Code)
		ae := &apiError{code: code, message: orResp.Error.Message}
		switch code {
		case "overloaded", "rate_limit_exceeded", "503", "502", "500":
			ae.retryable = true
		}
		return nil, ae
	}
	if len(orResp.Choices) == 0 {
		return nil, fmt.Errorf("%w (model=%s, id=%s)", errEmptyChoices, orResp.Model, orResp.ID)
	}
	return &orResp, nil
}

// isRetryable reports whether a failed try should be repeated.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.retryable
	}
	if errors.Is(err, errEmptyChoices) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryAfterDelay honors a Retry-After hint and otherwise backs off
// exponentially with jitter.
func retryAfterDelay(n uint, err error, config *retry.Config) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, config)
}
