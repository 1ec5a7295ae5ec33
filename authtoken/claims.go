// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package authtoken

import (
	"encoding/json"
	"time"

	"storj.io/common/uuid"
)

// Claims is the verified content of an agent token.
type Claims struct {
	SiteID    uuid.UUID `json:"siteId"`
	AccountID uuid.UUID `json:"accountId"`
	Domain    string    `json:"domain"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JSON returns the JSON encoding of the claims.
func (c *Claims) JSON() ([]byte, error) {
	data, err := json.Marshal(c)
	return data, Error.Wrap(err)
}

// FromJSON parses claims from their JSON encoding.
func FromJSON(data []byte) (*Claims, error) {
	claims := new(Claims)
	if err := json.Unmarshal(data, claims); err != nil {
		return nil, ErrToken.New("malformed claims")
	}
	return claims, nil
}
