// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package admin

import (
	"encoding/json"
	"net/http"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
	"storj.io/ingest/uploads"
)

// batchDetail is a batch together with its site domain and committed files.
type batchDetail struct {
	batches.Batch
	Domain string                 `json:"domain"`
	Files  []uploads.UploadedFile `json:"files"`
}

func (server *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	cursor := batches.Cursor{
		Limit: pageCursor(r).Limit,
		Page:  pageCursor(r).Page,
	}
	if raw := query.Get("siteId"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			sendJSONError(w, "invalid siteId", err.Error(), http.StatusBadRequest)
			return
		}
		cursor.SiteID = &id
	}
	if raw := query.Get("status"); raw != "" {
		status := batches.Status(raw)
		cursor.Status = &status
	}

	page, err := server.batches.List(ctx, cursor)
	if err != nil {
		serveError(w, "failed to list batches", err)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) batchInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	batch, err := server.batches.Get(ctx, id)
	if err != nil {
		serveError(w, "failed to get batch", err)
		return
	}
	files, err := server.uploads.ListByBatch(ctx, id)
	if err != nil {
		serveError(w, "failed to list batch files", err)
		return
	}

	detail := batchDetail{Batch: *batch, Files: files}
	if site, err := server.accounts.GetSite(ctx, batch.SiteID); err == nil {
		detail.Domain = site.Domain
	}

	data, err := json.Marshal(detail)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

// deleteBatch removes a batch and its file metadata. Blobs in the object
// store stay where they are.
func (server *Server) deleteBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	if err := server.batches.Delete(ctx, id); err != nil {
		serveError(w, "failed to delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
