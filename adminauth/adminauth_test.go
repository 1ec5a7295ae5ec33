// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package adminauth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/ingest/adminauth"
)

const testIssuer = "https://idp.test/realms/ops"

type fixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	verifier *adminauth.Verifier
}

func newFixture(t *testing.T) *fixture {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": "test-key",
			"kty": "RSA",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier := adminauth.NewVerifier(zaptest.NewLogger(t), adminauth.Config{
		Issuer:       testIssuer,
		JWKSURL:      server.URL,
		RoleClaim:    "realm_access.roles",
		AdminRole:    "admin",
		CacheRefresh: time.Minute,
	})
	return &fixture{key: key, server: server, verifier: verifier}
}

func (f *fixture) sign(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	raw, err := token.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func adminClaims(roles ...string) jwt.MapClaims {
	list := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		list = append(list, role)
	}
	return jwt.MapClaims{
		"iss":          testIssuer,
		"sub":          "operator-1",
		"email":        "ops@idp.test",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]interface{}{"roles": list},
	}
}

func TestVerify(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)

	principal, err := f.verifier.Verify(ctx, f.sign(t, adminClaims("admin", "viewer")))
	require.NoError(t, err)
	assert.Equal(t, "operator-1", principal.Subject)
	assert.Equal(t, "ops@idp.test", principal.Email)
	assert.Contains(t, principal.Roles, "admin")
}

func TestVerifyMissingRole(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)

	_, err := f.verifier.Verify(ctx, f.sign(t, adminClaims("viewer")))
	assert.True(t, adminauth.ErrForbidden.Has(err))
}

func TestVerifyExpired(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)

	claims := adminClaims("admin")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	_, err := f.verifier.Verify(ctx, f.sign(t, claims))
	assert.True(t, adminauth.ErrToken.Has(err))
}

func TestVerifyWrongIssuer(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)

	claims := adminClaims("admin")
	claims["iss"] = "https://other.test"
	_, err := f.verifier.Verify(ctx, f.sign(t, claims))
	assert.True(t, adminauth.ErrToken.Has(err))
}

func TestIssuedBy(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.verifier.IssuedBy(f.sign(t, adminClaims("admin"))))
	assert.False(t, f.verifier.IssuedBy("payload.signature"))
	assert.False(t, f.verifier.IssuedBy("not-a-token"))
}
