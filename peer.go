// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingest

import (
	"context"
	"errors"
	"net"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/ingest/accounts"
	"storj.io/ingest/admin"
	"storj.io/ingest/adminauth"
	"storj.io/ingest/authtoken"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/healthcheck"
	"storj.io/ingest/ingestweb"
	"storj.io/ingest/objectstore"
	"storj.io/ingest/uploads"
)

// Config is the global configuration of the ingest peer.
type Config struct {
	Tokens      authtoken.Config
	AdminAuth   adminauth.Config
	Batches     batches.Config
	Uploads     uploads.Config
	Partitions  errorlogs.PartitionConfig
	Web         ingestweb.Config
	Admin       admin.Config
	Healthcheck healthcheck.Config
}

// Peer is the ingest satellite process: the agent API, the admin API, the
// lifecycle chores, and the health endpoint, all running on one database and
// one object store.
//
// architecture: Peer
type Peer struct {
	Log *zap.Logger
	DB  DB

	ObjectStore objectstore.Store

	Accounts struct {
		Service *accounts.Service
	}

	Tokens struct {
		Service  *authtoken.Service
		Verifier *adminauth.Verifier
	}

	Batches struct {
		Service *batches.Service
		Reaper  *batches.Reaper
	}

	Uploads struct {
		Service *uploads.Service
	}

	ErrorLogs struct {
		Service    *errorlogs.Service
		Maintainer *errorlogs.PartitionMaintainer
	}

	Servers struct {
		Web    *ingestweb.Server
		Admin  *admin.Server
		Health *healthcheck.Server
	}
}

// New creates a new ingest peer. The token signing key gate runs first:
// a process with a missing or weak key must not come up at all.
func New(log *zap.Logger, db DB, store objectstore.Store, config Config) (*Peer, error) {
	if err := config.Tokens.CheckKey(); err != nil {
		return nil, err
	}

	peer := &Peer{
		Log:         log,
		DB:          db,
		ObjectStore: store,
	}

	{ // setup services
		peer.Accounts.Service = accounts.NewService(log.Named("accounts"), db)
		peer.Tokens.Service = authtoken.NewService(config.Tokens)
		peer.Tokens.Verifier = adminauth.NewVerifier(log.Named("adminauth"), config.AdminAuth)

		peer.Batches.Service = batches.NewService(log.Named("batches"), db.Batches(), config.Batches)
		peer.Batches.Reaper = batches.NewReaper(log.Named("batches:reaper"), db.Batches(), config.Batches)

		peer.Uploads.Service = uploads.NewService(log.Named("uploads"),
			db.UploadedFiles(), db.Batches(), store, config.Uploads)

		peer.ErrorLogs.Service = errorlogs.NewService(log.Named("errorlogs"),
			db.ErrorLogs(), db.Batches())
		peer.ErrorLogs.Maintainer = errorlogs.NewPartitionMaintainer(
			log.Named("errorlogs:partitions"), db.ErrorLogs(), config.Partitions)
	}

	{ // setup servers
		webListener, err := net.Listen("tcp", config.Web.Address)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Servers.Web = ingestweb.NewServer(log.Named("web"), config.Web, webListener,
			peer.Accounts.Service, peer.Tokens.Service, peer.Tokens.Verifier,
			peer.Batches.Service, peer.Uploads.Service, peer.ErrorLogs.Service)

		adminListener, err := net.Listen("tcp", config.Admin.Address)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Servers.Admin = admin.NewServer(log.Named("admin"), config.Admin, adminListener,
			peer.Tokens.Verifier, peer.Accounts.Service,
			peer.Batches.Service, peer.Uploads.Service, peer.ErrorLogs.Service)

		healthListener, err := net.Listen("tcp", config.Healthcheck.Address)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Servers.Health = healthcheck.NewServer(log.Named("healthcheck"),
			healthListener, config.Healthcheck,
			healthcheck.CheckFunc{CheckName: "database", Fn: func(ctx context.Context) bool {
				return db.Ping(ctx) == nil
			}},
			healthcheck.CheckFunc{CheckName: "objectstore", Fn: func(ctx context.Context) bool {
				return store.Ping(ctx) == nil
			}},
		)
	}

	return peer, nil
}

// Run runs the ingest peer until the context is canceled.
func (peer *Peer) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreCancel(peer.Batches.Reaper.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.ErrorLogs.Maintainer.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Servers.Web.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Servers.Admin.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Servers.Health.Run(ctx))
	})

	return group.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var errlist errs.Group

	if peer.Servers.Health != nil {
		errlist.Add(peer.Servers.Health.Close())
	}
	if peer.Servers.Admin != nil {
		errlist.Add(peer.Servers.Admin.Close())
	}
	if peer.Servers.Web != nil {
		errlist.Add(peer.Servers.Web.Close())
	}
	if peer.ErrorLogs.Maintainer != nil {
		errlist.Add(peer.ErrorLogs.Maintainer.Close())
	}
	if peer.Batches.Reaper != nil {
		errlist.Add(peer.Batches.Reaper.Close())
	}

	return errlist.Err()
}
