package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcher reads records from a gateway serving GET {base}/records/{ref}
// as {"data":"<base64>"}. HTTP 429 responses are retried with exponential backoff.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewHTTPFetcher creates a new record gateway client.
func NewHTTPFetcher(baseURL string, maxRetries int, baseDelay time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

type recordResponse struct {
	Data string `json:"data"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	body, err := f.get(ctx, "/records/"+url.PathEscape(ref))
	if err != nil {
		return nil, err
	}

	var resp recordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", ref, err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", ref, err)
	}
	return data, nil
}

// get performs a GET request with retry on 429.
func (f *HTTPFetcher) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := f.baseURL + path

	var lastErr error
	for attempt := range f.maxRetries + 1 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return body, nil
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP 429 at %s (attempt %d/%d)", endpoint, attempt+1, f.maxRetries+1)
			if attempt < f.maxRetries {
				delay := f.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		}

		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, endpoint, string(body))
	}

	return nil, lastErr
}
