package connector

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
)

// StatusError is returned for a non-2xx response from an external API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("external API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("external API returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryPolicy bounds retries of one HTTP call.
type RetryPolicy struct {
	MaxRetries int
	Wait       time.Duration
}

// Do executes send, retrying transport errors, 429 and 5xx with exponential backoff.
// Other 4xx responses fail immediately.
func (p RetryPolicy) Do(ctx context.Context, send func() (*resty.Response, error)) (*resty.Response, error) {
	op := func() (*resty.Response, error) {
		resp, err := send()
		if err != nil {
			return nil, err
		}
		if resp.IsSuccess() {
			return resp, nil
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: truncateBody(resp.String())}
		if !statusErr.Transient() {
			return nil, backoff.Permanent(statusErr)
		}
		if secs := retryAfterSeconds(resp); secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, statusErr
	}

	b := backoff.NewExponentialBackOff()
	if p.Wait > 0 {
		b.InitialInterval = p.Wait
	}
	tries := p.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tries)),
	)
}

func retryAfterSeconds(resp *resty.Response) int {
	v := resp.Header().Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

func truncateBody(body string) string {
	const max = 200
	if len(body) > max {
		return body[:max] + "..."
	}
	return body
}
