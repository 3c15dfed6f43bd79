// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package comfyui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/providers"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultTimeout is the completion ceiling for one job.
const DefaultTimeout = 30 * time.Minute

const historyAttempts = 20

type jobState int

const (
	jobSubmitted jobState = iota
	jobRunning
	jobSucceeded
	jobFailed
	jobTimedOut
)

func (s jobState) String() string {
	switch s {
	case jobSubmitted:
		return "submitted"
	case jobRunning:
		return "running"
	case jobSucceeded:
		return "succeeded"
	case jobFailed:
		return "failed"
	case jobTimedOut:
		return "timed out"
	}
	return "unknown"
}

type job struct {
	clientID    string
	promptID    string
	state       jobState
	currentNode string
}

// Engine drives one workflow graph through a ComfyUI server: submit, follow the event
// stream until the job ends, then download the chosen output.
type Engine struct {
	client  *client
	dialer  *websocket.Dialer
	timeout time.Duration

	historyDelay time.Duration
	newClientID  func() string
}

// NewEngine creates an engine for the server at baseURL. A non-positive timeout uses DefaultTimeout.
func NewEngine(baseURL string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		client: &client{
			baseURL: strings.TrimRight(baseURL, "/"),
			http:    &http.Client{Timeout: 2 * time.Minute},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		timeout:      timeout,
		historyDelay: 250 * time.Millisecond,
		newClientID:  uuid.NewString,
	}
}

// Execute runs graph to completion and returns its artifact.
func (e *Engine) Execute(ctx context.Context, graph map[string]any, onProgress providers.ProgressFunc) (*Artifact, error) {
	j := &job{clientID: e.newClientID()}

	sub, err := e.client.submit(ctx, graph, j.clientID)
	if err != nil {
		return nil, err
	}
	if len(sub.NodeErrors) > 0 {
		return nil, apperrors.New(apperrors.Validation,
			"workflow validation failed: "+describeNodeErrors(sub.NodeErrors))
	}
	j.promptID = sub.PromptID
	j.state = jobSubmitted

	stream, err := openStream(ctx, e.dialer, e.client.baseURL, j.clientID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Transport, "could not open ComfyUI event stream", err)
	}
	defer stream.Close()

	entry, err := e.client.history(ctx, j.promptID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !finished(entry) {
		if err := e.wait(ctx, j, stream, onProgress); err != nil {
			return nil, err
		}
		stream.Close()
		if entry, err = e.awaitHistory(ctx, j.promptID); err != nil {
			return nil, err
		}
	} else if failure := historyFailure(entry); failure != "" {
		return nil, apperrors.New(apperrors.Protocol, failure)
	}
	return e.collect(ctx, entry)
}

// awaitHistory polls briefly for the record of a job the stream reported as done.
// The server writes history after it announces completion.
func (e *Engine) awaitHistory(ctx context.Context, promptID string) (*historyEntry, error) {
	for attempt := 0; ; attempt++ {
		entry, err := e.client.history(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if entry != nil && finished(entry) {
			return entry, nil
		}
		if attempt >= historyAttempts {
			return nil, apperrors.New(apperrors.Protocol, "job finished but has no history record")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.historyDelay):
		}
	}
}

// wait follows the event stream until the job ends.
func (e *Engine) wait(ctx context.Context, j *job, stream *eventStream, onProgress providers.ProgressFunc) error {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			j.state = jobFailed
			return ctx.Err()

		case <-timer.C:
			j.state = jobTimedOut
			return apperrors.New(apperrors.Timeout,
				fmt.Sprintf("workflow did not finish within %s", e.timeout))

		case ev, ok := <-stream.Events():
			if !ok {
				j.state = jobFailed
				cause := stream.Err()
				if cause == nil {
					cause = errors.New("event stream ended")
				}
				return apperrors.Wrap(apperrors.Transport, "ComfyUI connection closed unexpectedly", cause)
			}
			// Events without a prompt id belong to whatever is running, which is this job.
			if ev.PromptID != "" && ev.PromptID != j.promptID {
				continue
			}

			switch ev.Type {
			case "progress":
				j.state = jobRunning
				node := ev.Node
				if node == "" {
					node = j.currentNode
				}
				if onProgress != nil {
					onProgress(providers.StepProgress{Step: ev.Value, TotalSteps: ev.Max, CurrentNode: node})
				}

			case "executing":
				if ev.NodeSet && ev.Node == "" {
					j.state = jobSucceeded
					return nil
				}
				j.state = jobRunning
				j.currentNode = ev.Node

			case "execution_success":
				j.state = jobSucceeded
				return nil

			case "execution_error":
				j.state = jobFailed
				msg := ev.Message
				if msg == "" {
					msg = "unknown error"
				}
				if ev.NodeType != "" {
					return apperrors.New(apperrors.Protocol,
						fmt.Sprintf("ComfyUI execution error in %s: %s", ev.NodeType, msg))
				}
				return apperrors.New(apperrors.Protocol, "ComfyUI execution error: "+msg)

			case "execution_interrupted":
				j.state = jobFailed
				return apperrors.New(apperrors.Protocol, "ComfyUI execution was interrupted")
			}
		}
	}
}

func (e *Engine) collect(ctx context.Context, entry *historyEntry) (*Artifact, error) {
	ref, motion, ok := selectArtifact(entry.Outputs)
	if !ok {
		return nil, apperrors.Wrap(apperrors.Protocol, "ComfyUI job finished without outputs", providers.ErrNoArtifact)
	}
	data, err := e.client.view(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Filename: ref.Filename,
		MimeType: MimeType(ref.Filename),
		Data:     data,
		Motion:   motion,
	}, nil
}

func finished(entry *historyEntry) bool {
	return entry.Status.Completed || entry.Status.StatusStr == "error" || len(entry.Outputs) > 0
}

// historyFailure extracts an execution error from a history record, or "".
func historyFailure(entry *historyEntry) string {
	if entry.Status.StatusStr != "error" {
		return ""
	}
	for _, m := range entry.Status.Messages {
		if len(m) != 2 || m[0] != "execution_error" {
			continue
		}
		data, _ := m[1].(map[string]any)
		nodeType, _ := data["node_type"].(string)
		msg, _ := data["exception_message"].(string)
		if nodeType != "" {
			return fmt.Sprintf("ComfyUI execution error in %s: %s", nodeType, msg)
		}
		return "ComfyUI execution error: " + msg
	}
	return "ComfyUI execution error"
}
