// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"encoding/json"
	"net/http"

	"storj.io/ingest/errorlogs"
)

// reportError records a site-level error. Accepted reports return no body.
func (server *Server) reportError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	entry, err := decodeErrorReport(r)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	agent, _ := GetAgent(ctx)

	if _, err = server.errorlogs.Record(ctx, agent.SiteID, entry); err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reportBatchError records an error against an owned batch and returns the
// created record.
func (server *Server) reportBatchError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	batchID, err := pathUUID(r, "batchId")
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	entry, err := decodeErrorReport(r)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	agent, _ := GetAgent(ctx)

	record, err := server.errorlogs.RecordForBatch(ctx, batchID, agent.SiteID, entry)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	serveJSON(server.log, w, http.StatusCreated, record)
}

// getErrorLog returns a recorded error. Agents see only their own site's
// records; administrators see any record.
func (server *Server) getErrorLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := pathUUID(r, "errorId")
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}

	var record *errorlogs.ErrorLog
	if agent, ok := GetAgent(ctx); ok {
		record, err = server.errorlogs.GetForSite(ctx, id, agent.SiteID)
	} else {
		record, err = server.errorlogs.Get(ctx, id)
	}
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	serveJSON(server.log, w, http.StatusOK, record)
}

func decodeErrorReport(r *http.Request) (entry errorlogs.NewErrorLog, err error) {
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		return entry, ErrBadRequest.New("invalid json body: %v", err)
	}
	return entry, nil
}
