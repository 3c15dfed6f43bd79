// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var verboseAuth = os.Getenv("MINDSTUDIO_VERBOSE") == "1"

// Store is the secret storage behind the auth service. *keychain.Manager implements it.
type Store interface {
	SaveAPIKey(apiKey string) error
	LoadAPIKey() (string, error)
	SaveAuthState(data []byte) error
	LoadAuthState() ([]byte, error)
	ClearAuth() error
}

// State represents persisted authentication state for the current user.
type State struct {
	LoggedIn bool   `json:"logged_in"`
	Account  string `json:"account"`
}

// Load reads the auth state from st. Missing state yields zero value.
func Load(st Store) (State, error) {
	var s State
	data, err := st.LoadAuthState()
	if err != nil {
		if verboseAuth {
			fmt.Printf("[DEBUG] auth.Load: LoadAuthState failed: %v\n", err)
		}
		return s, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		if verboseAuth {
			fmt.Printf("[DEBUG] auth.Load: Unmarshal failed: %v\n", err)
		}
		return s, err
	}
	return s, nil
}

// Save writes the auth state to st.
func Save(st Store, s State) error {
	if verboseAuth {
		fmt.Printf("[DEBUG] auth.Save: Saving auth state - LoggedIn: %v, Account: %s\n", s.LoggedIn, s.Account)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return st.SaveAuthState(b)
}
