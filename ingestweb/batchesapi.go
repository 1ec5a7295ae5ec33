// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"net/http"

	"github.com/gorilla/mux"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
)

// startBatch opens a new batch for the principal site.
func (server *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	agent, _ := GetAgent(ctx)
	batch, err := server.batches.Start(ctx, agent.SiteID, agent.AccountID, agent.Domain)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	serveJSON(server.log, w, http.StatusCreated, batch)
}

// getBatch returns a batch. Agents see only their own site's batches;
// administrators see any batch.
func (server *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := pathUUID(r, "id")
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}

	var batch *batches.Batch
	if agent, ok := GetAgent(ctx); ok {
		batch, err = server.batches.GetForSite(ctx, id, agent.SiteID)
	} else {
		batch, err = server.batches.Get(ctx, id)
	}
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}
	serveJSON(server.log, w, http.StatusOK, batch)
}

// closeBatch returns the handler transitioning an owned batch to the given
// terminal status.
func (server *Server) closeBatch(to batches.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var err error
		defer mon.Task()(&ctx)(&err)

		id, err := pathUUID(r, "id")
		if err != nil {
			server.serveJSONError(w, r, err)
			return
		}
		agent, _ := GetAgent(ctx)

		var batch *batches.Batch
		switch to {
		case batches.StatusCompleted:
			batch, err = server.batches.Complete(ctx, id, agent.SiteID)
		case batches.StatusFailed:
			batch, err = server.batches.Fail(ctx, id, agent.SiteID)
		case batches.StatusCancelled:
			batch, err = server.batches.Cancel(ctx, id, agent.SiteID)
		default:
			err = Error.New("unsupported transition to %s", to)
		}
		if err != nil {
			server.serveJSONError(w, r, err)
			return
		}
		serveJSON(server.log, w, http.StatusOK, batch)
	}
}

// pathUUID parses a UUID route variable.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)[name])
	if err != nil {
		return uuid.UUID{}, ErrBadRequest.New("invalid %s: %v", name, err)
	}
	return id, nil
}
