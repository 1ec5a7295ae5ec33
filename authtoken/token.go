// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package authtoken implements the symmetric-signed bearer tokens agents use
// to operate batches: a JSON claims payload and an HMAC-SHA256 signature,
// base64url-encoded and joined with a dot.
package authtoken

import (
	"encoding/base64"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default authtoken error class.
var Error = errs.Class("authtoken")

// ErrToken occurs when a presented token is malformed, tampered with, or
// expired.
var ErrToken = errs.Class("invalid token")

// Token is a signed claims payload.
type Token struct {
	Payload   []byte
	Signature []byte
}

// String returns the serialized form of the token.
func (t Token) String() string {
	payload := base64.URLEncoding.EncodeToString(t.Payload)
	signature := base64.URLEncoding.EncodeToString(t.Signature)
	return payload + "." + signature
}

// FromBase64URLString parses a token from its serialized form.
func FromBase64URLString(token string) (Token, error) {
	i := strings.IndexByte(token, '.')
	if i < 0 {
		return Token{}, ErrToken.New("invalid token format")
	}

	payload, err := base64.URLEncoding.DecodeString(token[:i])
	if err != nil {
		return Token{}, ErrToken.New("invalid token format")
	}
	signature, err := base64.URLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return Token{}, ErrToken.New("invalid token format")
	}

	return Token{Payload: payload, Signature: signature}, nil
}
