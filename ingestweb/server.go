// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingestweb serves the agent-facing HTTP API: token minting, batch
// lifecycle, file uploads, and error reporting. Every route is mounted under
// both API prefixes so agents on either path see the same surface.
package ingestweb

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/memory"
	"storj.io/ingest/accounts"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/authtoken"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

var mon = monkit.Package()

// apiPrefixes are the mount points of the agent API. Both serve the same
// handlers; the older prefix stays for deployed agents that never upgrade.
var apiPrefixes = []string{"/api/v1", "/api/dfc"}

// Config contains the agent API server configuration.
type Config struct {
	Address        string      `help:"address the agent API listens on" default:":8080"`
	MaxRequestSize memory.Size `help:"hard cap on an upload request body" default:"129.0 MiB"`
}

// Server implements the agent-facing HTTP API.
//
// architecture: Endpoint
type Server struct {
	log    *zap.Logger
	config Config

	listener net.Listener
	server   http.Server

	accounts      *accounts.Service
	tokens        *authtoken.Service
	adminVerifier *adminauth.Verifier
	batches       *batches.Service
	uploads       *uploads.Service
	errorlogs     *errorlogs.Service
}

// NewServer creates a new agent API server.
func NewServer(log *zap.Logger, config Config, listener net.Listener,
	accountsService *accounts.Service, tokens *authtoken.Service, adminVerifier *adminauth.Verifier,
	batchesService *batches.Service, uploadsService *uploads.Service, errorlogsService *errorlogs.Service,
) *Server {
	server := &Server{
		log:           log,
		config:        config,
		listener:      listener,
		accounts:      accountsService,
		tokens:        tokens,
		adminVerifier: adminVerifier,
		batches:       batchesService,
		uploads:       uploadsService,
		errorlogs:     errorlogsService,
	}

	router := mux.NewRouter()
	router.Use(server.withRequestID)
	for _, prefix := range apiPrefixes {
		sub := router.PathPrefix(prefix).Subrouter()

		sub.HandleFunc("/auth/token", server.mintToken).Methods(http.MethodPost)

		sub.HandleFunc("/batch/start", server.withAgentAuth(server.startBatch)).Methods(http.MethodPost)
		sub.HandleFunc("/batch/{id}", server.withReadAuth(server.getBatch)).Methods(http.MethodGet)
		sub.HandleFunc("/batch/{id}/complete", server.withAgentAuth(server.closeBatch(batches.StatusCompleted))).Methods(http.MethodPost)
		sub.HandleFunc("/batch/{id}/fail", server.withAgentAuth(server.closeBatch(batches.StatusFailed))).Methods(http.MethodPost)
		sub.HandleFunc("/batch/{id}/cancel", server.withAgentAuth(server.closeBatch(batches.StatusCancelled))).Methods(http.MethodPost)
		sub.HandleFunc("/batch/{id}/upload", server.withAgentAuth(server.uploadFiles)).Methods(http.MethodPost)

		sub.HandleFunc("/error", server.withAgentAuth(server.reportError)).Methods(http.MethodPost)
		sub.HandleFunc("/error/{batchId}", server.withAgentAuth(server.reportBatchError)).Methods(http.MethodPost)
		sub.HandleFunc("/error/log/{errorId}", server.withReadAuth(server.getErrorLog)).Methods(http.MethodGet)
	}

	server.server = http.Server{Handler: router}
	return server
}

// Run starts the server and blocks until the context is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return server.server.Shutdown(context.Background())
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	})
	return group.Wait()
}

// Close closes the server and underlying listener.
func (server *Server) Close() error {
	return server.server.Close()
}

// TestHandler exposes the router for tests.
func (server *Server) TestHandler() http.Handler {
	return server.server.Handler
}
