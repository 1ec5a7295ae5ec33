// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestweb

import (
	"context"
	"net/http"
	"strings"

	"storj.io/common/uuid"
	"storj.io/ingest/adminauth"
)

type contextKey int

const (
	contextKeyAgent contextKey = iota
	contextKeyAdmin
	contextKeyRequestID
)

// AgentPrincipal is the identity bound to a verified agent token.
type AgentPrincipal struct {
	SiteID    uuid.UUID
	AccountID uuid.UUID
	Domain    string
}

// GetAgent returns the agent principal on the context, if any.
func GetAgent(ctx context.Context) (*AgentPrincipal, bool) {
	principal, ok := ctx.Value(contextKeyAgent).(*AgentPrincipal)
	return principal, ok
}

// GetAdmin returns the admin principal on the context, if any.
func GetAdmin(ctx context.Context) (*adminauth.Principal, bool) {
	principal, ok := ctx.Value(contextKeyAdmin).(*adminauth.Principal)
	return principal, ok
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// withRequestID honors an inbound X-Request-Id header or generates one, and
// echoes it on the response for log correlation.
func (server *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			generated, err := uuid.New()
			if err == nil {
				id = generated.String()
			}
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

// withAgentAuth requires a verified agent token. Administrators are rejected
// here: write routes are the agent's alone.
func (server *Server) withAgentAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, err := server.authenticate(r, false)
		if err != nil {
			server.serveJSONError(w, r, err)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

// withReadAuth accepts either a verified agent token or a verified admin
// token. Handlers behind it must scope agent reads to the agent's own site.
func (server *Server) withReadAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, err := server.authenticate(r, true)
		if err != nil {
			server.serveJSONError(w, r, err)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

// authenticate resolves the bearer credentials on a request to a principal.
// The credential kind is decided by the token itself, not by the header it
// arrives in: admin tokens are JWTs claiming the configured issuer, anything
// else is treated as an agent token. A request carrying both kinds is
// rejected outright.
func (server *Server) authenticate(r *http.Request, allowAdmin bool) (_ context.Context, err error) {
	ctx := r.Context()

	var agentRaw, adminRaw string
	for _, header := range r.Header.Values("Authorization") {
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if raw == "" || raw == header {
			continue
		}
		if server.adminVerifier != nil && server.adminVerifier.IssuedBy(raw) {
			adminRaw = raw
		} else {
			agentRaw = raw
		}
	}

	switch {
	case agentRaw != "" && adminRaw != "":
		return nil, ErrAmbiguousPrincipal.New("request presents both agent and admin credentials")

	case adminRaw != "":
		if !allowAdmin {
			return nil, ErrWrongTokenType.New("route requires an agent token")
		}
		principal, err := server.adminVerifier.Verify(ctx, adminRaw)
		if err != nil {
			return nil, err
		}
		return context.WithValue(ctx, contextKeyAdmin, principal), nil

	case agentRaw != "":
		claims, err := server.tokens.VerifyToken(ctx, agentRaw)
		if err != nil {
			return nil, err
		}
		// the token outlives neither the site nor its account
		site, err := server.accounts.GetSite(ctx, claims.SiteID)
		if err != nil || !site.Active {
			return nil, ErrUnauthorized.New("site is not active")
		}
		return context.WithValue(ctx, contextKeyAgent, &AgentPrincipal{
			SiteID:    claims.SiteID,
			AccountID: claims.AccountID,
			Domain:    claims.Domain,
		}), nil

	default:
		return nil, ErrUnauthorized.New("missing credentials")
	}
}
