package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mindstudio/local/internal/manifest"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UserAgent is sent with every request. cmd sets the version at startup.
var UserAgent = "mindstudio-local/dev"

// HTTP implements API over REST endpoints.
type HTTP struct {
	// baseURL is the base URL for all HTTP requests
	baseURL string
	// endpoints contains the URL paths for the API endpoints
	endpoints manifest.HTTPEndpoints
	// apiKey is sent as a bearer token
	apiKey string
	// client handles short calls
	client *http.Client
	// pollClient outlives the server's long-poll hold
	pollClient *http.Client

	mu          sync.Mutex
	meCache     map[string]any
	meCacheTime time.Time
}

var _ API = (*HTTP)(nil)

func newHTTP(baseURL string, endpoints manifest.HTTPEndpoints, apiKey string) *HTTP {
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  endpoints,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		pollClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, e.Body)
}

func (h *HTTP) setStandardHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
}

// newRequest builds a request with standard headers and an optional JSON body.
func (h *HTTP) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	h.setStandardHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (h *HTTP) do(client *http.Client, req *http.Request, op string, out any) (int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return resp.StatusCode, nil
}
