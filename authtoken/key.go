// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package authtoken

import (
	"strings"

	"github.com/zeebo/errs"
)

// minKeyLength is the minimum accepted signing key length in bytes.
const minKeyLength = 32

// placeholderKeys are signing keys that ship in examples and must never make
// it to a running process.
var placeholderKeys = []string{
	"change-me",
	"changeme",
	"test-secret",
	"secret",
	"password",
	"insecure",
	"signing-key",
}

// ErrWeakKey occurs when the configured signing key fails the startup gate.
var ErrWeakKey = errs.Class("weak signing key")

// CheckKey validates the signing key at startup. The process must refuse to
// boot when the key is missing, shorter than 32 bytes, or a known
// placeholder. The check is skipped only under the explicit test profile.
func (config Config) CheckKey() error {
	if config.TestProfile {
		return nil
	}
	key := config.SigningKey
	if key == "" {
		return ErrWeakKey.New("signing key is not configured")
	}
	lowered := strings.ToLower(key)
	for _, placeholder := range placeholderKeys {
		if lowered == placeholder {
			return ErrWeakKey.New("signing key is a known placeholder")
		}
	}
	if len(key) < minKeyLength {
		return ErrWeakKey.New("signing key must be at least %d bytes", minKeyLength)
	}
	return nil
}
