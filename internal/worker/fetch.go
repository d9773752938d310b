package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

const fetchTimeout = 30 * time.Second

// fetchBytes downloads a provider-hosted asset so it can be re-uploaded to
// this service's own storage under a deterministic key (spec §5: "storage
// blobs are written exactly once under deterministic keys").
func fetchBytes(ctx domain.Context, url string) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: op=worker.fetchBytes.new_request: %v", domain.ErrProviderPermanent, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: op=worker.fetchBytes.do: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return nil, "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrUpstreamTimeout, url, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrProviderPermanent, url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: op=worker.fetchBytes.read: %v", domain.ErrUpstreamTimeout, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
