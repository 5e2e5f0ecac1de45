package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leeineian/jukebox/sys"
	"golang.org/x/time/rate"
)

const (
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, sys.Truncate(e.Body, 200))
}

// fetcher is a paced HTTP caller that retries network errors and 5xx
// responses with exponential backoff and gives up on 4xx straight away.
type fetcher struct {
	name      string
	client    *http.Client
	limiter   *rate.Limiter
	retryWait time.Duration
}

func newFetcher(name string, client *http.Client, perSecond float64) *fetcher {
	if client == nil {
		client = sys.HttpClient
	}
	return &fetcher{
		name:      name,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		retryWait: baseRetryWait,
	}
}

func (f *fetcher) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error), result any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.retryWait * time.Duration(1<<(attempt-1))
			sys.LogCatalog(sys.MsgCatalogRetry, f.name, attempt, maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := build(ctx)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, Body: string(body)}
			continue
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		if result != nil && len(body) > 0 {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// fetchPage returns a page body as text without retries.
func (f *fetcher) fetchPage(ctx context.Context, u string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
