package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

var httpClient = &http.Client{Timeout: requestTimeout}

// retryBackoff is the wait before retry n, counted from 1.
var retryBackoff = func(n int) time.Duration { return time.Duration(n) * time.Second }

// StatusError is a non-2xx webhook response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("alert: %s answered HTTP %d", e.URL, e.Code)
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// Send delivers event to hook. Transport errors and 5xx answers are
// retried; a 4xx answer is final.
func Send(ctx context.Context, hook Webhook, event Event) error {
	body, err := FormatPayload(hook.Format, event)
	if err != nil {
		return fmt.Errorf("alert: %s event for %s: %w", event.Type, event.RecordID, err)
	}

	for attempt := 1; ; attempt++ {
		err = post(ctx, hook, body)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			return fmt.Errorf("alert: giving up after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff(attempt)):
		}
	}
}

func post(ctx context.Context, hook Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{URL: hook.URL, Code: resp.StatusCode}
	}
	return nil
}
