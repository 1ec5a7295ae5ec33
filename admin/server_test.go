// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package admin_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"
	"storj.io/ingest/accounts"
	"storj.io/ingest/admin"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/ingesttest"
	"storj.io/ingest/uploads"
)

const testIssuer = "https://idp.test/realms/ops"

type fixture struct {
	handler http.Handler
	db      *ingesttest.DB
	blobs   *ingesttest.BlobStore

	accounts  *accounts.Service
	batches   *batches.Service
	uploads   *uploads.Service
	errorlogs *errorlogs.Service

	adminKey *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	log := zaptest.NewLogger(t)
	db := ingesttest.NewDB()
	blobs := ingesttest.NewBlobStore()

	adminKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": "test-key",
			"kty": "RSA",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(adminKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(adminKey.E)).Bytes()),
		}},
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(jwksServer.Close)

	verifier := adminauth.NewVerifier(log, adminauth.Config{
		Issuer:       testIssuer,
		JWKSURL:      jwksServer.URL,
		RoleClaim:    "realm_access.roles",
		AdminRole:    "admin",
		CacheRefresh: time.Minute,
	})

	accountsService := accounts.NewService(log, db)
	batchesService := batches.NewService(log, db.Batches(), batches.Config{
		Timeout:       time.Hour,
		MaxPerAccount: 5,
	})
	uploadsService := uploads.NewService(log, db.UploadedFiles(), db.Batches(), blobs, uploads.Config{
		MaxFileSize: memory.MiB,
		PutAttempts: 1,
	})
	errorlogsService := errorlogs.NewService(log, db.ErrorLogs(), db.Batches())

	server := admin.NewServer(log, admin.Config{Address: "127.0.0.1:0"}, nil,
		verifier, accountsService, batchesService, uploadsService, errorlogsService)

	return &fixture{
		handler:   server.TestHandler(),
		db:        db,
		blobs:     blobs,
		accounts:  accountsService,
		batches:   batchesService,
		uploads:   uploadsService,
		errorlogs: errorlogsService,
		adminKey:  adminKey,
	}
}

func (f *fixture) token(t *testing.T, roles ...string) string {
	list := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		list = append(list, role)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":          testIssuer,
		"sub":          "operator-1",
		"email":        "ops@idp.test",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]interface{}{"roles": list},
	})
	token.Header["kid"] = "test-key"
	raw, err := token.SignedString(f.adminKey)
	require.NoError(t, err)
	return raw
}

func (f *fixture) do(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/admin/accounts", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/admin/accounts", "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/admin/accounts", f.token(t, "viewer"), nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/admin/accounts", f.token(t, "admin"), nil).Code)
}

func TestAccountSiteManagement(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "admin")

	rec := f.do(t, http.MethodPost, "/api/admin/accounts", token,
		strings.NewReader(`{"email":"owner@example.com","name":"Owner"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var account accounts.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.True(t, account.Active)

	// duplicate email conflicts
	rec = f.do(t, http.MethodPost, "/api/admin/accounts", token,
		strings.NewReader(`{"email":"Owner@Example.com","name":"Dup"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/accounts/"+account.ID.String()+"/sites", token,
		strings.NewReader(`{"domain":"store-01.example.com","displayName":"Store 01"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		accounts.Site
		ClientSecret string `json:"clientSecret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created.ClientSecret, 64)

	// the secret never appears on subsequent reads
	rec = f.do(t, http.MethodGet, "/api/admin/sites/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.ClientSecret)

	rec = f.do(t, http.MethodPost, "/api/admin/sites/"+created.ID.String()+"/rotate-secret", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated struct {
		ClientSecret string `json:"clientSecret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.Len(t, rotated.ClientSecret, 64)
	assert.NotEqual(t, created.ClientSecret, rotated.ClientSecret)

	// deactivating the account cascades to its sites
	rec = f.do(t, http.MethodDelete, "/api/admin/accounts/"+account.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/sites/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var site accounts.Site
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.False(t, site.Active)
}

func TestBatchAdmin(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)
	token := f.token(t, "admin")

	account, err := f.accounts.CreateAccount(ctx, accounts.CreateAccount{Email: "owner@example.com", Name: "Owner"})
	require.NoError(t, err)
	site, err := f.accounts.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	require.NoError(t, err)

	batch, err := f.batches.Start(ctx, site.ID, account.ID, site.Domain)
	require.NoError(t, err)
	_, err = f.uploads.Upload(ctx, batch.ID, site.ID, uploads.Part{
		FileName: "sales.csv", Body: bytes.NewReader([]byte("id\n1\n")),
	})
	require.NoError(t, err)

	// list with a status filter
	rec := f.do(t, http.MethodGet, "/api/admin/batches?status=IN_PROGRESS&siteId="+site.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page batches.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Batches, 1)

	// detail carries the domain and the committed files
	rec = f.do(t, http.MethodGet, "/api/admin/batches/"+batch.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		batches.Batch
		Domain string                 `json:"domain"`
		Files  []uploads.UploadedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, site.Domain, detail.Domain)
	require.Len(t, detail.Files, 1)
	assert.Equal(t, "sales.csv", detail.Files[0].OriginalFileName)

	// deleting removes metadata but not the blob
	blobCount := f.blobs.Len()
	rec = f.do(t, http.MethodDelete, "/api/admin/batches/"+batch.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/batches/"+batch.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, blobCount, f.blobs.Len())
}

func TestErrorLogExport(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	f := newFixture(t)
	token := f.token(t, "admin")

	account, err := f.accounts.CreateAccount(ctx, accounts.CreateAccount{Email: "owner@example.com", Name: "Owner"})
	require.NoError(t, err)
	site, err := f.accounts.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	require.NoError(t, err)

	_, err = f.errorlogs.Record(ctx, site.ID, errorlogs.NewErrorLog{
		Type: "DISK_FULL", Message: "no space left",
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = f.errorlogs.Record(ctx, site.ID, errorlogs.NewErrorLog{
		Type: "PARSE_ERROR", Message: "bad row",
		OccurredAt: time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/admin/errors/export?since=2026-03-09T00:00:00Z&until=2026-03-11T00:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "id,batchId,siteId,type,message,metadata,occurredAt"))
	assert.Contains(t, body, "DISK_FULL")
	assert.NotContains(t, body, "PARSE_ERROR", "until bound excludes later records")

	// list endpoint honors the type filter
	rec = f.do(t, http.MethodGet, "/api/admin/errors?type=PARSE_ERROR", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page errorlogs.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "PARSE_ERROR", page.Logs[0].Type)
}
