// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/httperrors"
	"mindstudio/local/internal/logging"
	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"
)

func (d *Dispatcher) runChat(ctx context.Context, req *model.GenerationRequest, p providers.ChatProvider) model.ResultReport {
	payload, err := req.Chat()
	if err != nil {
		return model.Failed("invalid chat request: " + err.Error())
	}

	stream, err := p.Chat(ctx, req.ModelID, payload.Messages, providers.ChatOptions{
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
	})
	if err != nil {
		return model.Failed(failureMessage(err, req.ModelID, 0))
	}

	var (
		content  strings.Builder
		usage    *model.Usage
		finalErr error
		done     bool
	)
	th := newThrottle(d.opts.ProgressInterval, d.now)
	for chunk := range stream {
		content.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Done {
			finalErr = chunk.Err
			done = true
			break
		}
		if chunk.Content != "" && th.Allow() {
			d.progress(ctx, req, model.TextProgress(content.String()))
		}
	}
	// The adapter stops sending after Done; drain in case it did not.
	go func() {
		for range stream {
		}
	}()

	if finalErr != nil {
		return model.Failed(failureMessage(finalErr, req.ModelID, content.Len()))
	}
	if !done {
		return model.Failed(failureMessage(errors.New("chat stream ended before completion"), req.ModelID, content.Len()))
	}

	d.progress(ctx, req, model.TextProgress(content.String()))
	return model.Succeeded(&model.TextResult{Content: content.String(), Usage: usage})
}

func (d *Dispatcher) mediaOptions(ctx context.Context, req *model.GenerationRequest) (providers.GenerateOptions, providers.ProgressFunc, error) {
	media, err := req.Media()
	if err != nil {
		return providers.GenerateOptions{}, nil, err
	}
	onProgress := func(s providers.StepProgress) {
		d.progress(ctx, req, model.StepProgress(s.Step, s.TotalSteps, s.CurrentNode))
	}
	return providers.GenerateOptions{Prompt: media.Prompt, Media: media}, onProgress, nil
}

func (d *Dispatcher) runImage(ctx context.Context, req *model.GenerationRequest, p providers.ImageProvider) model.ResultReport {
	opts, onProgress, err := d.mediaOptions(ctx, req)
	if err != nil {
		return model.Failed("invalid image request: " + err.Error())
	}
	res, err := p.GenerateImage(ctx, req.ModelID, opts, onProgress)
	if err != nil {
		return model.Failed(failureMessage(err, req.ModelID, 0))
	}
	return model.Succeeded(res)
}

func (d *Dispatcher) runVideo(ctx context.Context, req *model.GenerationRequest, p providers.VideoProvider) model.ResultReport {
	opts, onProgress, err := d.mediaOptions(ctx, req)
	if err != nil {
		return model.Failed("invalid video request: " + err.Error())
	}
	res, err := p.GenerateVideo(ctx, req.ModelID, opts, onProgress)
	if err != nil {
		return model.Failed(failureMessage(err, req.ModelID, 0))
	}
	return model.Succeeded(res)
}

// progress forwards p best-effort.
func (d *Dispatcher) progress(ctx context.Context, req *model.GenerationRequest, p model.Progress) {
	if err := d.cp.SendProgress(ctx, req.ID, p); err != nil {
		d.log.Debug("Progress report failed", d.log.Args("request", req.ID, "error", logging.Mask(err.Error())))
	}
	ev := Event{Type: EventProgress, RequestID: req.ID, ModelID: req.ModelID, RequestType: req.RequestType}
	if p.Kind == model.ProgressText {
		ev.Chars = len(p.Content)
	} else {
		ev.Step, ev.TotalSteps = p.Step, p.TotalSteps
	}
	d.emit(ev)
}

// failureMessage turns an adapter error into the reason reported to the control plane.
// partial is the amount of output produced before a mid-stream failure.
func failureMessage(err error, modelID string, partial int) string {
	var msg string
	switch {
	case errors.Is(err, providers.ErrModelNotFound) || apperrors.Is(err, apperrors.NotFound):
		msg = fmt.Sprintf("model %q was not found by the local model server; it may have been removed since it was registered", modelID)
	case errors.Is(err, providers.ErrUnsupported):
		msg = providers.ErrUnsupported.Error()
	case errors.Is(err, context.DeadlineExceeded) && !apperrors.Is(err, apperrors.Timeout):
		msg = "the local model server took too long to respond"
	default:
		if actionable := httperrors.Actionable(err); actionable != "" {
			msg = actionable
		} else {
			msg = describe(err)
		}
	}
	if partial > 0 {
		msg = fmt.Sprintf("%s (failed after %d characters of output)", msg, partial)
	}
	return logging.Mask(msg)
}

// describe renders err without the kind prefix of typed errors.
func describe(err error) string {
	var e *apperrors.E
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Err == nil || isSentinel(e.Err) {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func isSentinel(err error) bool {
	return err == providers.ErrModelNotFound || err == providers.ErrUnsupported || err == providers.ErrNoArtifact
}
