package config

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	MAX_BACKOFF    = 2 * time.Minute
	BACKOFF_FACTOR = 2
	JITTER_FACTOR  = 0.5
)

// baseBackoff is a variable so tests can shorten it.
var baseBackoff = 1 * time.Second

// DoWithBackoff sends req until it gets a response below 500, retrying with
// exponential backoff and jitter. maxRetries <= 0 retries until ctx is done.
func DoWithBackoff(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	delay := baseBackoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := client.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		if maxRetries > 0 && attempt >= maxRetries {
			return nil, fmt.Errorf("max retries exceeded: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(withJitter(delay)):
		}
		delay = nextBackoff(delay)
	}
}

func withJitter(d time.Duration) time.Duration {
	d += time.Duration(rand.Float64() * float64(d) * JITTER_FACTOR)
	if d > MAX_BACKOFF {
		d = MAX_BACKOFF
	}
	return d
}

func nextBackoff(d time.Duration) time.Duration {
	d *= BACKOFF_FACTOR
	if d >= MAX_BACKOFF {
		d = MAX_BACKOFF
	}
	return d
}
