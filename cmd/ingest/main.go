// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// ingest is the satellite process of the batch ingest service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/memory"
	"storj.io/ingest"
	"storj.io/ingest/ingestdb"
	"storj.io/ingest/objectstore"
)

// runConfig is the full process configuration: the peer config plus the
// backing stores only the process layer knows how to open.
type runConfig struct {
	Database    ingestdb.Config
	ObjectStore objectstore.Config
	Peer        ingest.Config
}

func main() {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "batch ingest satellite",
	}

	root.AddCommand(
		runCmd(),
		migrateCmd(),
		setupCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the ingest satellite",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			config, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			db, err := ingestdb.Open(ctx, log.Named("db"), config.Database)
			if err != nil {
				return errs.New("error opening master database: %+v", err)
			}
			defer func() { err = errs.Combine(err, db.Close()) }()

			if err := db.MigrateToLatest(ctx); err != nil {
				return errs.New("error migrating master database: %+v", err)
			}

			store, err := objectstore.NewS3Store(ctx, log.Named("objectstore"), config.ObjectStore)
			if err != nil {
				return errs.New("error opening object store: %+v", err)
			}

			peer, err := ingest.New(log, db, store, config.Peer)
			if err != nil {
				return err
			}

			runErr := peer.Run(ctx)
			closeErr := peer.Close()
			return errs.Combine(runErr, closeErr)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "migrate the master database to the latest schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			config, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := ingestdb.Open(ctx, log.Named("db"), config.Database)
			if err != nil {
				return errs.New("error opening master database: %+v", err)
			}
			defer func() { err = errs.Combine(err, db.Close()) }()

			return db.MigrateToLatest(ctx)
		},
	}
}

func setupCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "write a config file with the defaults and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			setDefaults(v)
			if err := v.SafeWriteConfigAs(configPath); err != nil {
				return errs.New("error writing config: %+v", err)
			}
			fmt.Println("wrote", configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "ingest.yaml", "path of the config file to write")
	return cmd
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("INGEST_LOG_DEVELOPMENT") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig reads configuration from ingest.yaml in the working directory
// when present, overridden by INGEST_* environment variables with nested keys
// separated by underscores, falling back to defaults.
func loadConfig() (config runConfig, err error) {
	v := viper.New()
	v.SetEnvPrefix("ingest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("ingest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, errs.New("invalid config file: %+v", err)
		}
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		memorySizeHook(),
	)
	if err := v.Unmarshal(&config, viper.DecodeHook(hook)); err != nil {
		return config, errs.New("invalid configuration: %+v", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.maxconns", 25)
	v.SetDefault("database.connecttimeout", 10*time.Second)

	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.bucket", "ingest")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.accesskeyid", "")
	v.SetDefault("objectstore.secretaccesskey", "")
	v.SetDefault("objectstore.pathstyle", false)

	v.SetDefault("peer.tokens.signingkey", "")
	v.SetDefault("peer.tokens.ttl", time.Hour)
	v.SetDefault("peer.tokens.testprofile", false)

	v.SetDefault("peer.adminauth.issuer", "")
	v.SetDefault("peer.adminauth.jwksurl", "")
	v.SetDefault("peer.adminauth.roleclaim", "realm_access.roles")
	v.SetDefault("peer.adminauth.adminrole", "admin")
	v.SetDefault("peer.adminauth.cacherefresh", 5*time.Minute)

	v.SetDefault("peer.batches.timeout", time.Hour)
	v.SetDefault("peer.batches.maxperaccount", 5)
	v.SetDefault("peer.batches.reaperinterval", 5*time.Minute)
	v.SetDefault("peer.batches.reaperbatchlimit", 1000)

	v.SetDefault("peer.uploads.maxfilesize", "128.0 MiB")
	v.SetDefault("peer.uploads.putattempts", 3)
	v.SetDefault("peer.uploads.retrydelay", time.Second)
	v.SetDefault("peer.uploads.spooldir", "")

	v.SetDefault("peer.partitions.interval", time.Hour)

	v.SetDefault("peer.web.address", ":8080")
	v.SetDefault("peer.web.maxrequestsize", "129.0 MiB")
	v.SetDefault("peer.admin.address", ":8090")
	v.SetDefault("peer.healthcheck.address", "localhost:10500")
	v.SetDefault("peer.healthcheck.checktimeout", 5*time.Second)
}

// memorySizeHook decodes strings like "128.0 MiB" into memory.Size fields.
func memorySizeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(memory.Size(0)) {
			return data, nil
		}
		var size memory.Size
		if err := size.Set(data.(string)); err != nil {
			return nil, err
		}
		return size, nil
	}
}
