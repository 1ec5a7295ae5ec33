// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package authtoken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/spacemonkeygo/monkit/v3"

	"storj.io/common/uuid"
)

var mon = monkit.Package()

// Config holds the token plane configuration.
type Config struct {
	SigningKey  string        `help:"secret used to sign agent tokens" default:""`
	TTL         time.Duration `help:"agent token lifetime" default:"1h"`
	TestProfile bool          `help:"skip the signing key strength gate, test profile only" default:"false"`
}

// Service mints and verifies agent tokens. Verification covers the signature
// and the expiry; liveness of the referenced site is the caller's concern.
//
// architecture: Service
type Service struct {
	key []byte
	ttl time.Duration

	nowFn func() time.Time
}

// NewService returns a new token service.
func NewService(config Config) *Service {
	return &Service{
		key:   []byte(config.SigningKey),
		ttl:   config.TTL,
		nowFn: time.Now,
	}
}

// IssueToken mints a signed token for a site principal.
func (s *Service) IssueToken(ctx context.Context, siteID, accountID uuid.UUID, domain string) (_ string, _ *Claims, err error) {
	defer mon.Task()(&ctx)(&err)

	now := s.nowFn().UTC()
	claims := &Claims{
		SiteID:    siteID,
		AccountID: accountID,
		Domain:    domain,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	payload, err := claims.JSON()
	if err != nil {
		return "", nil, err
	}

	token := Token{Payload: payload}
	token.Signature = s.sign(payload)

	return token.String(), claims, nil
}

// VerifyToken checks the token signature and expiry and returns the claims.
func (s *Service) VerifyToken(ctx context.Context, raw string) (_ *Claims, err error) {
	defer mon.Task()(&ctx)(&err)

	token, err := FromBase64URLString(raw)
	if err != nil {
		return nil, err
	}

	expected := s.sign(token.Payload)
	if subtle.ConstantTimeCompare(expected, token.Signature) != 1 {
		return nil, ErrToken.New("signature mismatch")
	}

	claims, err := FromJSON(token.Payload)
	if err != nil {
		return nil, err
	}
	if !claims.ExpiresAt.After(s.nowFn()) {
		return nil, ErrToken.New("token expired")
	}

	return claims, nil
}

// TestSetNow overrides the clock, for tests.
func (s *Service) TestSetNow(nowFn func() time.Time) {
	s.nowFn = nowFn
}

func (s *Service) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}
