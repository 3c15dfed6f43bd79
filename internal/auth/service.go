// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth resolves and manages the MindStudio API key the tunnel authenticates with.
// It runs the device-link login flow, stores the resulting key in the OS keychain and
// validates it against the control plane. MINDSTUDIO_API_KEY always takes precedence
// over the stored key.
package auth

import (
	"context"
	"errors"
	"os"
	"strings"

	"mindstudio/local/internal/backend"
	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/keychain"
	"mindstudio/local/internal/manifest"
)

// EnvAPIKey overrides the stored API key.
const EnvAPIKey = "MINDSTUDIO_API_KEY"

// Source says where the active API key came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceEnv      Source = "environment"
	SourceKeychain Source = "keychain"
)

// ErrNoStore is returned by operations that need the keychain when it is unavailable.
var ErrNoStore = errors.New("OS keychain unavailable; set " + EnvAPIKey + " instead")

// Identity is the result of a successful WhoAmI.
type Identity struct {
	Account string
	Source  Source
	// Offline is set when the control plane could not be reached and Account comes
	// from the last saved state.
	Offline bool
}

// Service centralizes authentication-related operations against the backend
// and local secure storage/state.
type Service struct {
	store  Store
	getenv func(string) string
	newAPI func(apiKey string) backend.API
}

// NewService constructs an auth Service for the manifest's control plane.
// store may be nil when no keychain is available.
func NewService(m *manifest.Manifest, store Store) *Service {
	return &Service{
		store:  store,
		getenv: os.Getenv,
		newAPI: func(apiKey string) backend.API { return backend.New(m, apiKey) },
	}
}

// OpenStore returns the process-wide keychain store.
func OpenStore() (Store, error) {
	m, err := keychain.GetManager()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// APIKey resolves the active API key. An empty key with SourceNone means the user
// is not logged in.
func (s *Service) APIKey() (string, Source, error) {
	if key := strings.TrimSpace(s.getenv(EnvAPIKey)); key != "" {
		return key, SourceEnv, nil
	}
	if s.store == nil {
		return "", SourceNone, nil
	}
	key, err := s.store.LoadAPIKey()
	if errors.Is(err, keychain.ErrNotFound) {
		return "", SourceNone, nil
	}
	if err != nil {
		return "", SourceNone, err
	}
	return key, SourceKeychain, nil
}

// StartLogin begins the device-link login flow.
func (s *Service) StartLogin(ctx context.Context) (authURL string, deviceID string, pollIntervalSeconds int, err error) {
	return s.newAPI("").BeginDeviceLink(ctx)
}

// PollLogin attempts to complete login for the given deviceID.
// When a key is issued it is saved to the keychain and local state is updated.
// Returns (account, true, nil) on success; (_, false, nil) if still pending.
func (s *Service) PollLogin(ctx context.Context, deviceID string) (string, bool, error) {
	if s.store == nil {
		return "", false, ErrNoStore
	}
	key, err := s.newAPI("").PollDeviceLink(ctx, deviceID)
	if err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, nil
	}
	if err := s.store.SaveAPIKey(key); err != nil {
		return "", false, err
	}

	account := "user"
	if me, err := s.newAPI(key).GetMe(ctx); err == nil {
		if a := accountOf(me); a != "" {
			account = a
		}
	}
	_ = Save(s.store, State{LoggedIn: true, Account: account})
	return account, true, nil
}

// SetKey stores apiKey directly. With verify set the key is checked against the
// control plane first and a rejected key is not stored.
func (s *Service) SetKey(ctx context.Context, apiKey string, verify bool) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", apperrors.New(apperrors.Validation, "API key is empty")
	}
	if s.store == nil {
		return "", ErrNoStore
	}

	account := ""
	if verify {
		me, err := s.newAPI(apiKey).GetMe(ctx)
		if errors.Is(err, backend.ErrUnauthorized) {
			return "", apperrors.New(apperrors.Config, "the API key was rejected by MindStudio")
		}
		if err != nil {
			return "", apperrors.Wrap(apperrors.Transport, "could not verify the API key", err)
		}
		account = accountOf(me)
	}

	if err := s.store.SaveAPIKey(apiKey); err != nil {
		return "", err
	}
	if account == "" {
		account = "user"
	}
	_ = Save(s.store, State{LoggedIn: true, Account: account})
	return account, nil
}

// WhoAmI validates the active API key and returns the account when valid.
// A key rejected by the control plane is cleared from the keychain. When the control
// plane is unreachable the last saved account is returned with Offline set.
func (s *Service) WhoAmI(ctx context.Context) (Identity, bool, error) {
	key, source, err := s.APIKey()
	if err != nil {
		return Identity{}, false, err
	}
	if key == "" {
		return Identity{Source: SourceNone}, false, nil
	}

	me, err := s.newAPI(key).GetMe(ctx)
	switch {
	case err == nil:
		account := accountOf(me)
		if account == "" {
			account = "user"
		}
		return Identity{Account: account, Source: source}, true, nil
	case errors.Is(err, backend.ErrUnauthorized):
		if source == SourceKeychain {
			_ = s.ResetLocalAuth()
		}
		return Identity{Source: source}, false, nil
	}

	// Offline: fall back to local state
	if s.store != nil {
		if st, lerr := Load(s.store); lerr == nil && st.LoggedIn && st.Account != "" {
			return Identity{Account: st.Account, Source: source, Offline: true}, true, nil
		}
	}
	return Identity{Source: source}, false, err
}

// Logout clears the stored key and state. It reports whether MINDSTUDIO_API_KEY is
// still set, in which case the tunnel keeps authenticating with it.
func (s *Service) Logout() (envStillSet bool, err error) {
	envStillSet = strings.TrimSpace(s.getenv(EnvAPIKey)) != ""
	if s.store == nil {
		return envStillSet, nil
	}
	return envStillSet, s.ResetLocalAuth()
}

// ResetLocalAuth clears only local credentials/state (no remote calls).
func (s *Service) ResetLocalAuth() error {
	if s.store == nil {
		return nil
	}
	return s.store.ClearAuth()
}

// accountOf extracts a display identifier from the /auth/me payload.
func accountOf(me map[string]any) string {
	if me == nil {
		return ""
	}
	if u, ok := me["user"].(map[string]any); ok {
		if a := accountOf(u); a != "" {
			return a
		}
	}
	for _, key := range []string{"email", "name", "user_id", "id"} {
		if v, ok := me[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
