package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPProbe checks reachability by issuing a HEAD request against a
// well-known endpoint. Transient failures are retried briefly so that a
// single dropped packet doesn't flip the device into offline mode.
type HTTPProbe struct {
	client  *http.Client
	url     string
	retries uint
	logger  *slog.Logger
}

// NewHTTPProbe returns a Reachability checker probing the given URL.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		retries: 2,
		logger:  slog.Default().With("component", "probe"),
	}
}

// Online implements Reachability.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	probe := func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		// Any response at all proves the network path works; even a 4xx
		// or 5xx means the server was reached.
		return true, nil
	}

	_, err := backoff.Retry(ctx, probe,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.retries+1),
	)
	if err != nil {
		p.logger.Debug("Reachability probe failed", "url", p.url, "error", err)
		return false
	}
	return true
}
