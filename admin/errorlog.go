// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/ingest/errorlogs"
)

func (server *Server) listErrorLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cursor, err := errorLogCursor(r)
	if err != nil {
		sendJSONError(w, "invalid filter", err.Error(), http.StatusBadRequest)
		return
	}

	page, err := server.errorlogs.List(ctx, cursor)
	if err != nil {
		serveError(w, "failed to list error logs", err)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

// exportErrorLogs streams matching error logs as a CSV attachment.
func (server *Server) exportErrorLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cursor, err := errorLogCursor(r)
	if err != nil {
		sendJSONError(w, "invalid filter", err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="error-logs.csv"`)
	if err := server.errorlogs.ExportCSV(ctx, w, cursor); err != nil {
		// headers are out the door; the truncated file is all we can signal with
		server.log.Error("error log export failed", zap.Error(err))
	}
}

func errorLogCursor(r *http.Request) (cursor errorlogs.Cursor, err error) {
	query := r.URL.Query()

	if raw := query.Get("siteId"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			return cursor, err
		}
		cursor.SiteID = &id
	}
	if raw := query.Get("type"); raw != "" {
		cursor.Type = &raw
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return cursor, err
		}
		cursor.Since = &since
	}
	if raw := query.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return cursor, err
		}
		cursor.Until = &until
	}

	page := pageCursor(r)
	cursor.Limit = page.Limit
	cursor.Page = page.Page
	return cursor, nil
}
