// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// securityBackend stores the tunnel's API key and auth state as generic passwords in
// the login keychain through the security(1) tool. Entries use ServiceName as the
// account and the key name as the service, so `security find-generic-password -a
// mindstudio-local` lists everything the CLI has saved.
type securityBackend struct{}

func newSecurityBackend() (*securityBackend, error) {
	if _, err := exec.LookPath("security"); err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityBackend{}, nil
}

func (s *securityBackend) Set(key, value string) error {
	debugf("storing %q (%d bytes)", key, len(value))
	if err := s.Delete(key); err != nil {
		debugf("clearing %q before store: %v", key, err)
	}
	// -U updates in place if the delete above raced with another process.
	if _, stderr, err := security("add-generic-password", "-a", ServiceName, "-s", key, "-w", value, "-U"); err != nil {
		return fmt.Errorf("failed to store %q in keychain: %s: %w", key, stderr, err)
	}
	return nil
}

func (s *securityBackend) Get(key string) (string, error) {
	stdout, stderr, err := security("find-generic-password", "-a", ServiceName, "-s", key, "-w")
	if err != nil {
		if missing(stderr) {
			debugf("%q not in keychain", key)
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read %q from keychain: %s: %w", key, stderr, err)
	}
	return strings.TrimSpace(stdout), nil
}

func (s *securityBackend) Delete(key string) error {
	if _, stderr, err := security("delete-generic-password", "-a", ServiceName, "-s", key); err != nil && !missing(stderr) {
		return fmt.Errorf("failed to delete %q from keychain: %s: %w", key, stderr, err)
	}
	return nil
}

func security(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := exec.Command("security", args...)
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), strings.TrimSpace(errOut.String()), err
}

func missing(stderr string) bool {
	return strings.Contains(stderr, "could not be found")
}

// debugf traces keychain access under --verbose. Values are never printed.
func debugf(format string, args ...any) {
	if os.Getenv("MINDSTUDIO_VERBOSE") == "1" {
		fmt.Fprintf(os.Stderr, "[DEBUG] keychain: "+format+"\n", args...)
	}
}
