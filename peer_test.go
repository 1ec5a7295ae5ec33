// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/ingest"
	"storj.io/ingest/admin"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/authtoken"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/healthcheck"
	"storj.io/ingest/ingesttest"
	"storj.io/ingest/ingestweb"
	"storj.io/ingest/uploads"
)

func testPeerConfig() ingest.Config {
	return ingest.Config{
		Tokens: authtoken.Config{
			SigningKey: "0123456789abcdef0123456789abcdef",
			TTL:        time.Hour,
		},
		AdminAuth: adminauth.Config{
			Issuer:    "https://idp.test/realms/ops",
			RoleClaim: "realm_access.roles",
			AdminRole: "admin",
		},
		Batches: batches.Config{
			Timeout:          time.Hour,
			MaxPerAccount:    5,
			ReaperInterval:   time.Minute,
			ReaperBatchLimit: 100,
		},
		Uploads: uploads.Config{
			MaxFileSize: memory.MiB,
			PutAttempts: 3,
			RetryDelay:  time.Millisecond,
		},
		Partitions:  errorlogs.PartitionConfig{Interval: time.Hour},
		Web:         ingestweb.Config{Address: "127.0.0.1:0", MaxRequestSize: 2 * memory.MiB},
		Admin:       admin.Config{Address: "127.0.0.1:0"},
		Healthcheck: healthcheck.Config{Address: "127.0.0.1:0", CheckTimeout: time.Second},
	}
}

func TestPeerNew(t *testing.T) {
	config := testPeerConfig()

	peer, err := ingest.New(zaptest.NewLogger(t), ingesttest.NewDB(), ingesttest.NewBlobStore(), config)
	require.NoError(t, err)
	defer func() { require.NoError(t, peer.Close()) }()

	assert.NotNil(t, peer.Accounts.Service)
	assert.NotNil(t, peer.Batches.Service)
	assert.NotNil(t, peer.Batches.Reaper)
	assert.NotNil(t, peer.Uploads.Service)
	assert.NotNil(t, peer.ErrorLogs.Service)
	assert.NotNil(t, peer.ErrorLogs.Maintainer)
	assert.NotNil(t, peer.Servers.Web)
	assert.NotNil(t, peer.Servers.Admin)
	assert.NotNil(t, peer.Servers.Health)
}

func TestPeerRefusesWeakSigningKey(t *testing.T) {
	config := testPeerConfig()

	for _, key := range []string{"", "short", "change-me"} {
		config.Tokens.SigningKey = key
		_, err := ingest.New(zaptest.NewLogger(t), ingesttest.NewDB(), ingesttest.NewBlobStore(), config)
		assert.True(t, authtoken.ErrWeakKey.Has(err), "key %q must be refused", key)
	}

	// the gate is skipped under the test profile
	config.Tokens.SigningKey = "short"
	config.Tokens.TestProfile = true
	peer, err := ingest.New(zaptest.NewLogger(t), ingesttest.NewDB(), ingesttest.NewBlobStore(), config)
	require.NoError(t, err)
	require.NoError(t, peer.Close())
}
