// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tunnel

import (
	"time"

	"mindstudio/local/internal/model"
)

// EventType enumerates dispatcher event kinds.
type EventType string

const (
	// EventReady is emitted once the model set is known and polling starts.
	EventReady EventType = "ready"
	// EventStarted is emitted when a request is routed to a provider.
	EventStarted EventType = "started"
	// EventProgress carries a progress update forwarded for a request.
	EventProgress EventType = "progress"
	// EventCompleted is emitted after a successful result was reported.
	EventCompleted EventType = "completed"
	// EventFailed is emitted after a failed result was reported.
	EventFailed EventType = "failed"
	// EventPollError is emitted for every failed poll, before the backoff.
	EventPollError EventType = "poll_error"
	// EventStopped is emitted when the loop has exited.
	EventStopped EventType = "stopped"
)

// Event is a generic container for dispatcher UI events.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type EventType
	Time time.Time

	// Request fields
	RequestID   string
	ModelID     string
	RequestType model.RequestType
	Provider    string

	// Progress
	Step       int
	TotalSteps int
	Chars      int

	// Failure reason or poll error
	Message string

	// Completed and failed requests
	Elapsed time.Duration

	// Ready
	Models []string
}
