// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"net/http"
	"time"

	"storj.io/common/uuid"
)

// tokenResponse is the body of a successful token mint.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	SiteID    uuid.UUID `json:"siteId"`
	AccountID uuid.UUID `json:"accountId"`
	Domain    string    `json:"domain"`
}

// mintToken exchanges Basic domain:clientSecret credentials for a signed
// agent token.
func (server *Server) mintToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	domain, secret, ok := r.BasicAuth()
	if !ok {
		err = ErrUnauthorized.New("missing credentials")
		server.serveJSONError(w, r, err)
		return
	}

	site, err := server.accounts.AuthenticateAgent(ctx, domain, secret)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}

	token, claims, err := server.tokens.IssueToken(ctx, site.ID, site.AccountID, site.Domain)
	if err != nil {
		server.serveJSONError(w, r, err)
		return
	}

	serveJSON(server.log, w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		SiteID:    site.ID,
		AccountID: site.AccountID,
		Domain:    site.Domain,
	})
}
