// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package errorlogs

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"
)

// csvHeader is the fixed export column order.
var csvHeader = []string{"id", "batchId", "siteId", "type", "message", "metadata", "occurredAt"}

// WriteCSV writes error logs as CSV with the fixed column order. Fields
// containing commas, quotes, or newlines are quoted with doubled internal
// quotes per RFC 4180. Metadata is serialized as JSON into its column.
func WriteCSV(w io.Writer, logs []ErrorLog) error {
	csvw := csv.NewWriter(w)
	if err := csvw.Write(csvHeader); err != nil {
		return Error.Wrap(err)
	}

	for _, log := range logs {
		batchID := ""
		if log.BatchID != nil {
			batchID = log.BatchID.String()
		}
		metadata := ""
		if len(log.Metadata) > 0 {
			data, err := json.Marshal(log.Metadata)
			if err != nil {
				return Error.Wrap(err)
			}
			metadata = string(data)
		}

		record := []string{
			log.ID.String(),
			batchID,
			log.SiteID.String(),
			log.Type,
			log.Message,
			metadata,
			log.OccurredAt.UTC().Format(time.RFC3339),
		}
		if err := csvw.Write(record); err != nil {
			return Error.Wrap(err)
		}
	}

	csvw.Flush()
	return Error.Wrap(csvw.Error())
}
