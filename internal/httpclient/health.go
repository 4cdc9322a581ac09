package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckHealth probes every URL concurrently with a GET. A target is alive when
// it answers with any status below 500 before the timeout; the first failure
// is returned.
func CheckHealth(ctx context.Context, client *http.Client, urls []string, timeout time.Duration) error {
	if len(urls) == 0 {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range urls {
		target := target
		g.Go(func() error {
			return probe(gctx, client, target)
		})
	}
	return g.Wait()
}

func probe(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check %s: %w", target, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check %s: %w", target, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check %s: HTTP %d", target, resp.StatusCode)
	}
	return nil
}
