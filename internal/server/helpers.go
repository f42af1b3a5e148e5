package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// healthPollInterval spaces readiness probes.
const healthPollInterval = 100 * time.Millisecond

// WaitForHealthy probes baseURL's /health until it answers 200 OK. It gives
// up with the last probe error when ctx ends.
func WaitForHealthy(ctx context.Context, baseURL string) error {
	healthURL := strings.TrimSuffix(baseURL, "/") + "/health"
	client := &http.Client{Timeout: time.Second}

	var last error
	for {
		last = probe(ctx, client, healthURL)
		if last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server at %s not healthy: %w", baseURL, last)
		case <-time.After(healthPollInterval):
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}
