// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objectstore defines the durable blob store contract the upload
// pipeline writes through, and its S3 implementation.
package objectstore

import (
	"context"
	"io"

	"github.com/zeebo/errs"
)

var (
	// Error is the default objectstore error class.
	Error = errs.Class("objectstore")
	// ErrTransient marks failures worth retrying: throttling, 5xx, network.
	ErrTransient = errs.Class("objectstore transient")
	// ErrPermanent marks failures that retrying cannot fix.
	ErrPermanent = errs.Class("objectstore permanent")
)

// Config holds the object store connection configuration.
type Config struct {
	Endpoint        string `help:"object store endpoint, empty for AWS default" default:""`
	Bucket          string `help:"bucket all batch objects are written to" default:""`
	Region          string `help:"object store region" default:"us-east-1"`
	AccessKeyID     string `help:"object store access key id" default:""`
	SecretAccessKey string `help:"object store secret access key" default:""`
	PathStyle       bool   `help:"use path-style addressing, needed by most S3-compatible stores" default:"false"`
}

// Store is the blob store used by the upload pipeline. Implementations must
// be safe for concurrent use.
type Store interface {
	// Put writes an object under key. The reader supplies exactly size
	// bytes. Errors are classified as ErrTransient or ErrPermanent.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// Ping verifies the store is reachable, for health checks.
	Ping(ctx context.Context) error
}

// Transient reports whether an error from a Store is worth retrying.
func Transient(err error) bool {
	return ErrTransient.Has(err)
}
