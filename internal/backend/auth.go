package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// BeginDeviceLink fetches a sign-in link from /auth/device.
// It starts the device authorization flow by requesting a link and device id from the backend.
// Returns the link URL, device ID, polling interval in seconds, and any error.
func (h *HTTP) BeginDeviceLink(ctx context.Context) (string, string, int, error) {
	req, err := h.newRequest(ctx, http.MethodGet, h.endpoints.DeviceLink, nil)
	if err != nil {
		return "", "", 0, err
	}

	// Be liberal in what we accept: decode into a map first
	var raw map[string]any
	if _, err := h.do(h.client, req, "device link", &raw); err != nil {
		return "", "", 0, err
	}

	link := extractLink(raw)
	if link == "" {
		return "", "", 0, errors.New("empty sign-in link")
	}

	interval := 3
	if v, ok := raw["interval"].(float64); ok && v >= 1 {
		interval = int(v)
	}
	return link, extractDeviceID(raw, link), interval, nil
}

// extractLink extracts the sign-in link from the response payload.
func extractLink(raw map[string]any) string {
	for _, key := range []string{"link", "url", "verification_uri_complete"} {
		if v, ok := raw[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// extractDeviceID extracts the device ID from various possible fields in the response.
func extractDeviceID(raw map[string]any, link string) string {
	for _, key := range []string{"device_id", "deviceId", "code", "device_code", "deviceCode"} {
		if v, ok := raw[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return extractDeviceIDFromURL(link)
}

// extractDeviceIDFromURL attempts to extract a device ID from query parameters or path segments.
func extractDeviceIDFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	q := u.Query()
	for _, key := range []string{"device_id", "deviceId", "code"} {
		if v := q.Get(key); v != "" {
			return v
		}
	}

	// Fallback: use last non-empty path segment
	parts := strings.Split(u.Path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return ""
}

// PollDeviceLink posts { device_id } to /auth/token.
// Returns an empty key while authorization is pending.
func (h *HTTP) PollDeviceLink(ctx context.Context, deviceID string) (string, error) {
	req, err := h.newRequest(ctx, http.MethodPost, h.endpoints.Token, map[string]string{"device_id": deviceID})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json, */*")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if key := findBearerTokenInHeaders(resp.Header); key != "" {
			return key, nil
		}
		return parseKeyFromBody(resp.Body, resp.Header.Get("Content-Type")), nil
	case http.StatusGone, http.StatusForbidden:
		return "", errors.New("sign-in link expired or was denied")
	default:
		// Pending
		return "", nil
	}
}

// parseKeyFromBody extracts the API key from a JSON or plain-text body.
func parseKeyFromBody(r io.Reader, contentType string) string {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	lowerCT := strings.ToLower(contentType)
	if strings.Contains(lowerCT, "json") || contentType == "" {
		var body any
		if err := json.Unmarshal(b, &body); err == nil {
			var key string
			walkJSON(body, &key)
			if key != "" || strings.Contains(lowerCT, "json") {
				return key
			}
		}
	}
	return strings.TrimSpace(string(b))
}

// walkJSON recursively searches a JSON structure for the API key.
// It handles the common field naming conventions.
func walkJSON(node any, key *string) {
	if *key != "" {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		for k, vv := range v {
			lk := strings.ToLower(strings.ReplaceAll(k, "_", ""))
			if s, ok := vv.(string); ok {
				val := strings.TrimSpace(s)
				switch lk {
				case "apikey", "key", "token", "accesstoken":
					*key = val
				case "authorization":
					*key = parseBearerToken(val)
				}
				if *key != "" {
					return
				}
			}
			walkJSON(vv, key)
		}
	case []any:
		for _, e := range v {
			walkJSON(e, key)
		}
	}
}
