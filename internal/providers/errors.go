// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package providers

import (
	"errors"
	"fmt"

	apperrors "mindstudio/local/internal/errors"
)

var (
	// ErrModelNotFound is returned when the backend does not have the requested model.
	ErrModelNotFound = errors.New("model not found")

	// ErrUnsupported is returned when a provider cannot serve a generation type.
	ErrUnsupported = errors.New("provider does not support this generation type")

	// ErrNoArtifact is returned when a finished job produced nothing downloadable.
	ErrNoArtifact = errors.New("no output artifact produced")
)

// ModelNotFound wraps ErrModelNotFound with the model and provider names.
func ModelNotFound(provider, modelName string) error {
	return apperrors.Wrap(apperrors.NotFound,
		fmt.Sprintf("model %q not found on %s", modelName, provider),
		ErrModelNotFound)
}

// Unreachable wraps a transport error talking to a local backend.
func Unreachable(provider string, err error) error {
	return apperrors.Wrap(apperrors.Transport,
		fmt.Sprintf("could not reach %s", provider), err)
}
