// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package errorlogs_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/common/testrand"
	"storj.io/ingest/errorlogs"
)

func TestWriteCSV(t *testing.T) {
	batchID := testrand.UUID()
	logs := []errorlogs.ErrorLog{
		{
			ID:         testrand.UUID(),
			SiteID:     testrand.UUID(),
			BatchID:    &batchID,
			Type:       "PARSE_ERROR",
			Message:    "line 3: unexpected \"quote\", got,comma\nand newline",
			Metadata:   map[string]string{"file": "sales.csv"},
			OccurredAt: time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC),
		},
		{
			ID:         testrand.UUID(),
			SiteID:     testrand.UUID(),
			Type:       "DISK_FULL",
			Message:    "plain",
			OccurredAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, errorlogs.WriteCSV(&buf, logs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"id", "batchId", "siteId", "type", "message", "metadata", "occurredAt"}, records[0])
	assert.Equal(t, batchID.String(), records[1][1])
	assert.Equal(t, "line 3: unexpected \"quote\", got,comma\nand newline", records[1][4])
	assert.Equal(t, `{"file":"sales.csv"}`, records[1][5])
	assert.Equal(t, "2026-03-10T12:30:00Z", records[1][6])

	// standalone errors leave the batch column empty
	assert.Equal(t, "", records[2][1])
	assert.Equal(t, "", records[2][5])
}

func TestWriteCSVQuoting(t *testing.T) {
	logs := []errorlogs.ErrorLog{{
		ID:         testrand.UUID(),
		SiteID:     testrand.UUID(),
		Type:       "X",
		Message:    `say "hello", world`,
		OccurredAt: time.Now().UTC(),
	}}

	var buf bytes.Buffer
	require.NoError(t, errorlogs.WriteCSV(&buf, logs))

	// internal quotes doubled, field wrapped in quotes
	assert.Contains(t, buf.String(), `"say ""hello"", world"`)
}
