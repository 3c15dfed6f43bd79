// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors provides user-friendly error handling for HTTP requests.
// Failures reaching the control plane are presented with pterm; failures reaching a
// local model server are turned into a single actionable line suitable for a failed result.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Class is the category of a network failure.
type Class int

const (
	ClassOther Class = iota
	ClassTimeout
	ClassDNS
	ClassConnectionRefused
	ClassTLS
	ClassServer
)

// Classify detects common network failure types.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case isConnectionRefusedError(err):
		return ClassConnectionRefused
	case isDNSError(err):
		return ClassDNS
	case isTimeoutError(err):
		return ClassTimeout
	case isSSLError(err):
		return ClassTLS
	case isServerError(err.Error()):
		return ClassServer
	}
	return ClassOther
}

// Actionable returns a one-line explanation of a failure talking to a local model
// server, or "" when err is not a recognized network failure.
func Actionable(err error) string {
	switch Classify(err) {
	case ClassConnectionRefused:
		return "could not connect to the local model server; make sure your local model server is running"
	case ClassDNS:
		return "could not resolve the local model server address; check the provider base URL"
	case ClassTimeout:
		return "the local model server took too long to respond"
	case ClassTLS:
		return "secure connection to the local model server failed; check the provider base URL scheme"
	}
	return ""
}

// FormatNetworkError converts technical HTTP/network errors reaching the control plane
// into user-friendly messages. It displays troubleshooting information and returns the
// wrapped error for logging.
func FormatNetworkError(err error, context string) error {
	if err == nil {
		return nil
	}
	displayErrorMessage(err, context)
	return fmt.Errorf("network error: %w", err)
}

// displayErrorMessage shows a formatted error message to the user based on error type.
func displayErrorMessage(err error, context string) {
	switch Classify(err) {
	case ClassTimeout:
		showTimeoutError(context)
	case ClassDNS:
		showDNSError(context)
	case ClassConnectionRefused:
		showConnectionRefusedError(context)
	case ClassTLS:
		showSSLError(context)
	case ClassServer:
		showServerError(context)
	default:
		showGenericError(context, err.Error())
	}
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "actively refused")
}

// isSSLError checks if the error is an SSL/TLS error.
func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "ssl") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// isServerError checks if the error indicates a server-side problem (5xx errors).
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	return strings.Contains(lower, " 500 ") ||
		strings.Contains(lower, " 502 ") ||
		strings.Contains(lower, " 503 ") ||
		strings.Contains(lower, " 504 ") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout")
}

func showTimeoutError(context string) {
	pterm.Printf("⏱️  Connection timeout while %s\n", context)
	pterm.Println()
	pterm.Println("MindStudio took too long to respond. This could mean:")
	pterm.Println("  • Slow internet connection")
	pterm.Println("  • The service is under heavy load")
	pterm.Println("  • A firewall is blocking the connection")
	pterm.Println()
}

func showDNSError(context string) {
	pterm.Printf("🌐 Cannot resolve server address while %s\n", context)
	pterm.Println()
	pterm.Println("Unable to look up the MindStudio API. Please check:")
	pterm.Println("  • Your internet connection is working")
	pterm.Println("  • DNS settings are correct")
	pterm.Println("  • The api_base_url setting, if you changed it")
	pterm.Println()
}

func showConnectionRefusedError(context string) {
	pterm.Printf("🚫 Connection refused while %s\n", context)
	pterm.Println()
	pterm.Println("The server is not accepting connections. This could mean:")
	pterm.Println("  • The service is temporarily down")
	pterm.Println("  • A local control plane is not running (environment = local)")
	pterm.Println("  • Wrong server address or port")
	pterm.Println()
}

func showSSLError(context string) {
	pterm.Printf("🔒 Secure connection failed while %s\n", context)
	pterm.Println()
	pterm.Println("Cannot establish a secure HTTPS connection. Try:")
	pterm.Println("  • Check your system date and time")
	pterm.Println("  • Verify network proxy settings")
	pterm.Println()
}

func showServerError(context string) {
	pterm.Printf("⚠️  Server error while %s\n", context)
	pterm.Println()
	pterm.Println("The MindStudio API encountered an internal error.")
	pterm.Println("This is not a problem with your setup. Please try again in a few minutes.")
	pterm.Println()
}

func showGenericError(context string, errDetails string) {
	pterm.Printf("❌ Cannot reach MindStudio while %s\n", context)
	pterm.Println()
	pterm.Println("Please check your internet connection and firewall settings.")
	pterm.Println()

	if errDetails != "" {
		shortErr := errDetails
		if len(shortErr) > 100 {
			shortErr = shortErr[:100] + "..."
		}
		pterm.Debug.Printf("Technical details: %s\n", shortErr)
		pterm.Println()
	}
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
