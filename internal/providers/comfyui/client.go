// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package comfyui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/providers"
)

// fileRef points at one file produced by an output node.
type fileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// nodeOutput is what an output node reports in the job history.
type nodeOutput struct {
	Images []fileRef `json:"images,omitempty"`
	Gifs   []fileRef `json:"gifs,omitempty"`
	Videos []fileRef `json:"videos,omitempty"`
}

type historyStatus struct {
	StatusStr string  `json:"status_str"`
	Completed bool    `json:"completed"`
	Messages  [][]any `json:"messages"`
}

type historyEntry struct {
	Outputs map[string]nodeOutput `json:"outputs"`
	Status  historyStatus         `json:"status"`
}

type nodeError struct {
	ClassType string `json:"class_type"`
	Errors    []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"errors"`
}

type submitResponse struct {
	PromptID   string               `json:"prompt_id"`
	Number     int                  `json:"number"`
	NodeErrors map[string]nodeError `json:"node_errors"`
	Error      any                  `json:"error"`
}

// client speaks the REST half of the ComfyUI protocol.
type client struct {
	baseURL string
	http    *http.Client
}

// submit queues a workflow graph for clientID.
func (c *client) submit(ctx context.Context, graph map[string]any, clientID string) (*submitResponse, error) {
	b, err := json.Marshal(map[string]any{"prompt": graph, "client_id": clientID})
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.Unreachable("ComfyUI", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Transport, "read submission response", err)
	}

	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.New(apperrors.Protocol,
				fmt.Sprintf("workflow submission failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return nil, apperrors.Wrap(apperrors.Protocol, "malformed submission response", err)
	}
	if len(out.NodeErrors) > 0 {
		return &out, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.Protocol,
			fmt.Sprintf("workflow submission failed: %d %s", resp.StatusCode, describeSubmitError(out.Error)))
	}
	if out.PromptID == "" {
		return nil, apperrors.New(apperrors.Protocol, "submission response carried no prompt_id")
	}
	return &out, nil
}

// history fetches the record of promptID. A missing record returns (nil, nil).
func (c *client) history(ctx context.Context, promptID string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.Unreachable("ComfyUI", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.Protocol, fmt.Sprintf("history request failed: %d", resp.StatusCode))
	}

	var all map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, apperrors.Wrap(apperrors.Protocol, "malformed history response", err)
	}
	entry, ok := all[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// view downloads the bytes of one output file.
func (c *client) view(ctx context.Context, ref fileRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.Unreachable("ComfyUI", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.Protocol,
			fmt.Sprintf("download of %s failed: %d", ref.Filename, resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// describeNodeErrors renders validation errors in node-id order.
func describeNodeErrors(errs map[string]nodeError) string {
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		ne := errs[id]
		msg := "invalid node"
		if len(ne.Errors) > 0 {
			msg = ne.Errors[0].Message
			if d := strings.TrimSpace(ne.Errors[0].Details); d != "" {
				msg += ": " + d
			}
		}
		if ne.ClassType != "" {
			parts = append(parts, fmt.Sprintf("node %s (%s): %s", id, ne.ClassType, msg))
		} else {
			parts = append(parts, fmt.Sprintf("node %s: %s", id, msg))
		}
	}
	return strings.Join(parts, "; ")
}

func describeSubmitError(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return m
		}
	}
	return "unknown error"
}

// sortNodeIDs orders ids numerically when both are numbers, lexically otherwise.
func sortNodeIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if isDigits(a) && isDigits(b) && len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
