// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package admin implements administrative endpoints for the ingest satellite:
// account and site management, batch inspection, and error log export. Every
// route requires a verified identity-provider token carrying the admin role.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ingest/accounts"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

var mon = monkit.Package()

// Config defines configuration for the admin server.
type Config struct {
	Address string `help:"admin peer http listening address" default:":8090"`
}

// Server provides endpoints for administrative tasks.
//
// architecture: Endpoint
type Server struct {
	log    *zap.Logger
	config Config

	listener net.Listener
	server   http.Server

	verifier  *adminauth.Verifier
	accounts  *accounts.Service
	batches   *batches.Service
	uploads   *uploads.Service
	errorlogs *errorlogs.Service
}

// NewServer returns a new administration Server.
func NewServer(log *zap.Logger, config Config, listener net.Listener,
	verifier *adminauth.Verifier, accountsService *accounts.Service,
	batchesService *batches.Service, uploadsService *uploads.Service,
	errorlogsService *errorlogs.Service,
) *Server {
	server := &Server{
		log:       log,
		config:    config,
		listener:  listener,
		verifier:  verifier,
		accounts:  accountsService,
		batches:   batchesService,
		uploads:   uploadsService,
		errorlogs: errorlogsService,
	}

	root := mux.NewRouter()
	api := root.PathPrefix("/api/admin").Subrouter()
	api.Use(server.withAuth)

	api.HandleFunc("/accounts", server.addAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts", server.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", server.accountInfo).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", server.updateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id}", server.deactivateAccount).Methods(http.MethodDelete)
	api.HandleFunc("/accounts/{id}/sites", server.addSite).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/sites", server.listAccountSites).Methods(http.MethodGet)

	api.HandleFunc("/sites", server.listSites).Methods(http.MethodGet)
	api.HandleFunc("/sites/{id}", server.siteInfo).Methods(http.MethodGet)
	api.HandleFunc("/sites/{id}", server.updateSite).Methods(http.MethodPut)
	api.HandleFunc("/sites/{id}", server.deactivateSite).Methods(http.MethodDelete)
	api.HandleFunc("/sites/{id}/rotate-secret", server.rotateSiteSecret).Methods(http.MethodPost)

	api.HandleFunc("/batches", server.listBatches).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}", server.batchInfo).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}", server.deleteBatch).Methods(http.MethodDelete)

	api.HandleFunc("/errors", server.listErrorLogs).Methods(http.MethodGet)
	api.HandleFunc("/errors/export", server.exportErrorLogs).Methods(http.MethodGet)

	server.server = http.Server{Handler: root}
	return server
}

// withAuth verifies the bearer token and requires the admin role. The acting
// subject lands in the request log of every admin call.
func (server *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			sendJSONError(w, "Unauthorized", "missing bearer token", http.StatusUnauthorized)
			return
		}

		principal, err := server.verifier.Verify(r.Context(), raw)
		if err != nil {
			if adminauth.ErrForbidden.Has(err) {
				sendJSONError(w, "Forbidden", "token does not grant the admin role", http.StatusForbidden)
				return
			}
			sendJSONError(w, "Unauthorized", "token verification failed", http.StatusUnauthorized)
			return
		}

		server.log.Info("admin request",
			zap.String("subject", principal.Subject),
			zap.String("email", principal.Email),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))

		next.ServeHTTP(w, r)
	})
}

// Run starts the admin endpoint.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// TestHandler exposes the router for tests.
func (server *Server) TestHandler() http.Handler {
	return server.server.Handler
}
