// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"storj.io/common/uuid"
	"storj.io/ingest/accounts"
)

func (server *Server) addAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendJSONError(w, "failed to read body", err.Error(), http.StatusInternalServerError)
		return
	}

	var input accounts.CreateAccount
	if err := json.Unmarshal(body, &input); err != nil {
		sendJSONError(w, "failed to unmarshal request", err.Error(), http.StatusBadRequest)
		return
	}

	account, err := server.accounts.CreateAccount(ctx, input)
	if err != nil {
		serveError(w, "failed to create account", err)
		return
	}

	data, err := json.Marshal(account)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusCreated, data)
}

func (server *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := server.accounts.ListAccounts(ctx, pageCursor(r))
	if err != nil {
		serveError(w, "failed to list accounts", err)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) accountInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	account, err := server.accounts.GetAccount(ctx, id)
	if err != nil {
		serveError(w, "failed to get account", err)
		return
	}

	data, err := json.Marshal(account)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	var input accounts.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "failed to unmarshal request", err.Error(), http.StatusBadRequest)
		return
	}

	account, err := server.accounts.UpdateAccount(ctx, id, input)
	if err != nil {
		serveError(w, "failed to update account", err)
		return
	}

	data, err := json.Marshal(account)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	if err := server.accounts.DeactivateAccount(ctx, id); err != nil {
		serveError(w, "failed to deactivate account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) addSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	var input accounts.CreateSite
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "failed to unmarshal request", err.Error(), http.StatusBadRequest)
		return
	}
	input.AccountID = accountID

	site, err := server.accounts.CreateSite(ctx, input)
	if err != nil {
		serveError(w, "failed to create site", err)
		return
	}

	// the client secret is handed out exactly once, on creation
	data, err := json.Marshal(struct {
		accounts.Site
		ClientSecret string `json:"clientSecret"`
	}{Site: *site, ClientSecret: site.ClientSecret})
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusCreated, data)
}

func (server *Server) listAccountSites(w http.ResponseWriter, r *http.Request) {
	accountID, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}
	server.serveSitesPage(w, r, &accountID)
}

func (server *Server) listSites(w http.ResponseWriter, r *http.Request) {
	var accountID *uuid.UUID
	if raw := r.URL.Query().Get("accountId"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			sendJSONError(w, "invalid accountId", err.Error(), http.StatusBadRequest)
			return
		}
		accountID = &id
	}
	server.serveSitesPage(w, r, accountID)
}

func (server *Server) serveSitesPage(w http.ResponseWriter, r *http.Request, accountID *uuid.UUID) {
	page, err := server.accounts.ListSites(r.Context(), accountID, pageCursor(r))
	if err != nil {
		serveError(w, "failed to list sites", err)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) siteInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	site, err := server.accounts.GetSite(ctx, id)
	if err != nil {
		serveError(w, "failed to get site", err)
		return
	}

	data, err := json.Marshal(site)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) updateSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	var input accounts.UpdateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "failed to unmarshal request", err.Error(), http.StatusBadRequest)
		return
	}

	site, err := server.accounts.UpdateSite(ctx, id, input)
	if err != nil {
		serveError(w, "failed to update site", err)
		return
	}

	data, err := json.Marshal(site)
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

func (server *Server) deactivateSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	if err := server.accounts.DeactivateSite(ctx, id); err != nil {
		serveError(w, "failed to deactivate site", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) rotateSiteSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := routeUUID(w, r, "id")
	if !ok {
		return
	}

	secret, err := server.accounts.RotateSecret(ctx, id)
	if err != nil {
		serveError(w, "failed to rotate site secret", err)
		return
	}

	data, err := json.Marshal(struct {
		ClientSecret string `json:"clientSecret"`
	}{ClientSecret: secret})
	if err != nil {
		sendJSONError(w, "json encoding failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSONData(w, http.StatusOK, data)
}

// routeUUID parses a UUID route variable, replying with a 400 on failure.
func routeUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(mux.Vars(r)[name])
	if err != nil {
		sendJSONError(w, "invalid "+name, err.Error(), http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

// pageCursor reads limit and page query parameters.
func pageCursor(r *http.Request) accounts.Cursor {
	var cursor accounts.Cursor
	if limit, err := strconv.ParseUint(r.URL.Query().Get("limit"), 10, 32); err == nil {
		cursor.Limit = uint(limit)
	}
	if page, err := strconv.ParseUint(r.URL.Query().Get("page"), 10, 32); err == nil {
		cursor.Page = uint(page)
	}
	return cursor
}
