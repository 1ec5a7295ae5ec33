// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package adminauth verifies administrator tokens issued by an external
// identity provider. Admin tokens are RS256 JWTs validated against the
// provider's published JWKS; the admin role is read from a configured claim
// path. Agent tokens are not JWTs, so the issuer claim is what tells the two
// apart, not where the token is placed in the request.
package adminauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the default adminauth error class.
	Error = errs.Class("adminauth")
	// ErrToken occurs when an admin token fails verification.
	ErrToken = errs.Class("invalid admin token")
	// ErrForbidden occurs when a verified token lacks the admin role.
	ErrForbidden = errs.Class("missing admin role")

	mon = monkit.Package()
)

// Config holds the admin token verification configuration.
type Config struct {
	Issuer       string        `help:"issuer claim expected on admin tokens" default:""`
	JWKSURL      string        `help:"URL of the identity provider JWKS document" default:""`
	RoleClaim    string        `help:"dot-separated claim path holding the role list" default:"realm_access.roles"`
	AdminRole    string        `help:"role required for administrative access" default:"admin"`
	CacheRefresh time.Duration `help:"minimum interval between JWKS refetches" default:"5m"`
}

// Principal is a verified administrator.
type Principal struct {
	Subject string
	Email   string
	Roles   []string
}

// Verifier validates admin JWTs against the identity provider keys.
//
// architecture: Service
type Verifier struct {
	log    *zap.Logger
	config Config
	keys   *jwksCache
	parser *jwt.Parser

	nowFn func() time.Time
}

// NewVerifier returns a new admin token verifier.
func NewVerifier(log *zap.Logger, config Config) *Verifier {
	return &Verifier{
		log:    log,
		config: config,
		keys:   newJWKSCache(config.JWKSURL, config.CacheRefresh),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithIssuer(config.Issuer),
			jwt.WithExpirationRequired(),
		),
		nowFn: time.Now,
	}
}

// Verify validates a raw admin token and returns its principal. The token
// must be signed by a provider key, carry the configured issuer, be within
// its validity window, and grant the admin role.
func (v *Verifier) Verify(ctx context.Context, raw string) (_ *Principal, err error) {
	defer mon.Task()(&ctx)(&err)

	claims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, ErrToken.Wrap(err)
	}

	roles := claimRoles(claims, v.config.RoleClaim)
	principal := &Principal{Roles: roles}
	principal.Subject, _ = claims["sub"].(string)
	principal.Email, _ = claims["email"].(string)

	for _, role := range roles {
		if role == v.config.AdminRole {
			return principal, nil
		}
	}
	return nil, ErrForbidden.New("token does not grant %q", v.config.AdminRole)
}

// IssuedBy reports whether a raw token is a JWT claiming the configured
// issuer. It does not verify the signature; it only decides which verifier a
// presented credential should be routed to.
func (v *Verifier) IssuedBy(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	var claims struct {
		Issuer string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}
	return claims.Issuer == v.config.Issuer
}

// claimRoles walks a dot-separated path through the claims map and collects
// the string entries of the list found at the end.
func claimRoles(claims jwt.MapClaims, path string) []string {
	var current interface{} = map[string]interface{}(claims)
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = node[part]
	}

	list, ok := current.([]interface{})
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(list))
	for _, entry := range list {
		if role, ok := entry.(string); ok {
			roles = append(roles, role)
		}
	}
	return roles
}
