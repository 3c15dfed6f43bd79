// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// PollErrorType represents the category of a control-plane poll failure.
type PollErrorType int

const (
	PollErrorUnknown PollErrorType = iota
	PollErrorNetwork
	PollErrorAuth
	PollErrorTimeout
	PollErrorUnavailable
)

// ParsePollError categorizes a poll error message.
func ParsePollError(errMsg string) PollErrorType {
	lower := strings.ToLower(errMsg)

	if strings.Contains(lower, " 401") || strings.Contains(lower, " 403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") {
		return PollErrorAuth
	}
	if strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof") {
		return PollErrorNetwork
	}
	if strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout") {
		return PollErrorTimeout
	}
	if strings.Contains(lower, " 502") || strings.Contains(lower, " 503") || strings.Contains(lower, " 504") ||
		strings.Contains(lower, "unavailable") {
		return PollErrorUnavailable
	}
	return PollErrorUnknown
}

// FormatPollError formats a poll failure in a user-friendly way.
func FormatPollError(errMsg string, retryIn string) string {
	errType := ParsePollError(errMsg)

	var builder strings.Builder
	builder.WriteString(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Lost contact with MindStudio"))
	builder.WriteString("\n")

	switch errType {
	case PollErrorNetwork:
		builder.WriteString("The connection to MindStudio was interrupted. Check your internet connection.\n")
	case PollErrorAuth:
		builder.WriteString("MindStudio rejected the API key.\n")
	case PollErrorTimeout:
		builder.WriteString("MindStudio did not answer in time.\n")
	case PollErrorUnavailable:
		builder.WriteString("MindStudio is temporarily unavailable.\n")
	default:
		builder.WriteString("Polling for requests failed.\n")
	}

	if errType == PollErrorAuth {
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'mindstudio-local auth login' and start again"))
	} else {
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint(fmt.Sprintf("→ Retrying in %s", retryIn)))
	}
	builder.WriteString("\n")

	if strings.TrimSpace(errMsg) != "" {
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}
	return builder.String()
}
