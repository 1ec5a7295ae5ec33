// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package healthcheck exposes the liveness of the process dependencies, the
// database and the object store, over a small HTTP surface.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// Error is the default healthcheck error class.
	Error = errs.Class("healthcheck")

	mon = monkit.Package()
)

// Config is the configuration for the healthcheck server.
type Config struct {
	Address      string        `help:"address to listen on for health checks" default:"localhost:10500"`
	CheckTimeout time.Duration `help:"per-check timeout" default:"5s"`
}

// Check reports the liveness of one dependency.
type Check interface {
	// Name returns the name of the dependency being checked.
	Name() string
	// Healthy returns true when the dependency responds.
	Healthy(ctx context.Context) bool
}

// CheckFunc adapts a function with a name into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) bool
}

// Name implements Check.
func (c CheckFunc) Name() string { return c.CheckName }

// Healthy implements Check.
func (c CheckFunc) Healthy(ctx context.Context) bool { return c.Fn(ctx) }

// Server handles HTTP requests for health checks.
type Server struct {
	log    *zap.Logger
	config Config

	checks map[string]Check

	listener net.Listener
	server   http.Server
}

// NewServer creates a new health check server.
func NewServer(log *zap.Logger, listener net.Listener, config Config, checks ...Check) *Server {
	checkMap := make(map[string]Check, len(checks))
	for _, check := range checks {
		checkMap[check.Name()] = check
	}
	srv := &Server{
		log:      log,
		config:   config,
		checks:   checkMap,
		listener: listener,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleAll).Methods(http.MethodGet)
	router.HandleFunc("/health/{name}", srv.handleSingle).Methods(http.MethodGet)

	srv.server = http.Server{Handler: router}

	return srv
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.CheckTimeout)
	defer cancel()
	var err error
	defer mon.Task()(&ctx)(&err)

	results := make(map[string]bool, len(s.checks))
	allHealthy := true
	for name, check := range s.checks {
		healthy := check.Healthy(ctx)
		allHealthy = allHealthy && healthy
		results[name] = healthy
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err = json.NewEncoder(w).Encode(results); err != nil {
		s.log.Error("failed to encode health check response", zap.Error(err))
	}
}

func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.CheckTimeout)
	defer cancel()
	var err error
	defer mon.Task()(&ctx)(&err)

	name := mux.Vars(r)["name"]
	check, ok := s.checks[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	healthy := check.Healthy(ctx)
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err = json.NewEncoder(w).Encode(map[string]bool{"healthy": healthy}); err != nil {
		s.log.Error("failed to encode health check response", zap.Error(err))
	}
}

// Run starts the health check server.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return s.server.Shutdown(context.Background())
	})
	group.Go(func() error {
		defer cancel()
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			err = nil
		}
		return err
	})
	return group.Wait()
}

// Close stops the server.
func (s *Server) Close() error {
	return s.server.Close()
}

// TestGetAddress returns the address of this server, for tests.
func (s *Server) TestGetAddress() string {
	return s.listener.Addr().String()
}
