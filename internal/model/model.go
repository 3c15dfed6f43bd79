// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model defines the data exchanged between the tunnel, the control plane and
// the local provider adapters: generation requests with their typed payloads, the
// results produced for them, progress updates and model descriptors.
//
// The types in this package are transport-agnostic; the JSON shapes match the
// control-plane wire contract.
package model

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestType names the kind of generation a request asks for.
type RequestType string

const (
	RequestChat  RequestType = "chat"
	RequestImage RequestType = "image"
	RequestVideo RequestType = "video"
)

// Capability is what a provider can produce.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
	CapabilityVideo Capability = "video"
)

// Capability returns the provider capability needed to serve the request type.
func (t RequestType) Capability() (Capability, bool) {
	switch t {
	case RequestChat:
		return CapabilityText, true
	case RequestImage:
		return CapabilityImage, true
	case RequestVideo:
		return CapabilityVideo, true
	}
	return "", false
}

// GenerationRequest is one unit of work handed out by the control plane.
// It is immutable once received.
type GenerationRequest struct {
	ID          string              `json:"id"`
	ModelID     string              `json:"modelId"`
	RequestType RequestType         `json:"requestType"`
	Payload     jsoniter.RawMessage `json:"payload"`
}

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload is the payload of a chat request.
type ChatPayload struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"maxTokens,omitempty"`
}

// MediaPayload is the payload of an image or video request.
type MediaPayload struct {
	Prompt string         `json:"prompt"`
	Config map[string]any `json:"config,omitempty"`
}

// Chat decodes the payload of a chat request.
func (r *GenerationRequest) Chat() (ChatPayload, error) {
	var p ChatPayload
	if r.RequestType != RequestChat {
		return p, fmt.Errorf("request %s is %q, not chat", r.ID, r.RequestType)
	}
	if len(r.Payload) == 0 {
		return p, fmt.Errorf("request %s has an empty payload", r.ID)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("decode chat payload: %w", err)
	}
	if len(p.Messages) == 0 {
		return p, fmt.Errorf("request %s has no messages", r.ID)
	}
	return p, nil
}

// Media decodes the payload of an image or video request.
func (r *GenerationRequest) Media() (MediaPayload, error) {
	var p MediaPayload
	if r.RequestType != RequestImage && r.RequestType != RequestVideo {
		return p, fmt.Errorf("request %s is %q, not image or video", r.ID, r.RequestType)
	}
	if len(r.Payload) == 0 {
		return p, fmt.Errorf("request %s has an empty payload", r.ID)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", r.RequestType, err)
	}
	if p.Config == nil {
		p.Config = map[string]any{}
	}
	return p, nil
}

// lookup returns the first present value among keys.
func (p MediaPayload) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p.Config[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns a string config value, accepting camelCase and snake_case keys.
func (p MediaPayload) String(def string, keys ...string) string {
	v, ok := p.lookup(keys...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

// Float returns a numeric config value; numeric strings are accepted.
func (p MediaPayload) Float(def float64, keys ...string) float64 {
	v, ok := p.lookup(keys...)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int returns an integer config value; numeric strings are accepted.
func (p MediaPayload) Int(def int64, keys ...string) int64 {
	v, ok := p.lookup(keys...)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return int64(f)
	}
	return def
}

// Has reports whether any of the keys is set.
func (p MediaPayload) Has(keys ...string) bool {
	_, ok := p.lookup(keys...)
	return ok
}

// Raw returns the untyped config value for a key.
func (p MediaPayload) Raw(keys ...string) (any, bool) {
	return p.lookup(keys...)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// ModelDescriptor describes one model or workflow a provider can serve.
type ModelDescriptor struct {
	Name        string     `json:"name"`
	Provider    string     `json:"provider"`
	Capability  Capability `json:"type"`
	Description string     `json:"description,omitempty"`
}
