// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/common/memory"
	"storj.io/common/sync2"
	"storj.io/common/uuid"
	"storj.io/ingest/batches"
	"storj.io/ingest/objectstore"
)

var mon = monkit.Package()

// Config contains configurable values for the upload pipeline.
type Config struct {
	MaxFileSize memory.Size   `help:"maximum accepted file size" default:"128.0 MiB"`
	PutAttempts int           `help:"object store put attempts before giving up" default:"3"`
	RetryDelay  time.Duration `help:"delay between object store put attempts" default:"1s"`
	SpoolDir    string        `help:"directory for spooled upload bodies, empty for the OS default" default:""`
}

// Part is one file of a multipart upload request.
type Part struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// Service runs the three-phase upload pipeline.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	files   DB
	batches batches.DB
	store   objectstore.Store
	config  Config

	nowFn func() time.Time
}

// NewService returns a new uploads service.
func NewService(log *zap.Logger, files DB, batchesDB batches.DB, store objectstore.Store, config Config) *Service {
	return &Service{
		log:     log,
		files:   files,
		batches: batchesDB,
		store:   store,
		config:  config,
		nowFn:   time.Now,
	}
}

// Upload ingests a single file into a batch on behalf of a site.
//
// Phase A validates against the current batch row and spools the body to a
// temp file while computing its SHA-256. Phase B puts the blob with bounded
// retries and holds no database resources, so a put that blocks for tens of
// seconds on a large file never pins a transaction or row lock. Phase C
// commits the metadata in its own transaction, re-checking that the batch is
// still IN_PROGRESS; a batch reaped between phases leaves the blob as an
// acceptable orphan and no row.
func (s *Service) Upload(ctx context.Context, batchID, siteID uuid.UUID, part Part) (file *UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)

	fileName := path.Base(strings.TrimSpace(part.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, ErrValidation.New("file name is required")
	}

	// Phase A: validate against the live batch row.
	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.SiteID != siteID {
		return nil, batches.ErrOwnership.New("")
	}
	if batch.Status != batches.StatusInProgress {
		return nil, batches.ErrInvalidState.New("status is %s", batch.Status)
	}
	exists, err := s.files.Exists(ctx, batchID, fileName)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if exists {
		return nil, ErrDuplicateFile.New("%s", fileName)
	}

	storageKey := batch.StoragePath + fileName

	spool, size, checksum, err := s.spool(ctx, part.Body)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	// Phase B: put the blob, no transaction held.
	if err := s.put(ctx, storageKey, spool, size, part.ContentType); err != nil {
		mon.Counter("uploads_failed").Inc(1)
		return nil, err
	}

	// Phase C: commit metadata; the store re-checks the batch state.
	file, err = s.files.Commit(ctx, CommitUpload{
		BatchID:          batchID,
		OriginalFileName: fileName,
		StorageKey:       storageKey,
		FileSize:         size,
		ContentType:      part.ContentType,
		Checksum:         checksum,
	}, s.nowFn().UTC())
	if err != nil {
		mon.Counter("uploads_failed").Inc(1)
		return nil, err
	}

	mon.Counter("uploads_committed").Inc(1)
	mon.Counter("bytes_ingested").Inc(size)
	s.log.Info("file uploaded",
		zap.Stringer("batchId", batchID),
		zap.String("file", fileName),
		zap.Int64("size", size))

	return file, nil
}

// Get returns an uploaded file, enforcing that the requesting site owns the
// batch it belongs to.
func (s *Service) Get(ctx context.Context, id, siteID uuid.UUID) (file *UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err = s.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	batch, err := s.batches.Get(ctx, file.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.SiteID != siteID {
		return nil, batches.ErrOwnership.New("")
	}
	return file, nil
}

// ListByBatch returns the committed files of a batch.
func (s *Service) ListByBatch(ctx context.Context, batchID uuid.UUID) (files []UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.files.ListByBatch(ctx, batchID)
}

// spool streams the request body into a temp file, hashing as it goes, and
// enforces the size cap without buffering the file in memory.
func (s *Service) spool(ctx context.Context, body io.Reader) (_ *os.File, size int64, checksum string, err error) {
	defer mon.Task()(&ctx)(&err)

	spool, err := os.CreateTemp(s.config.SpoolDir, "ingest-upload-*")
	if err != nil {
		return nil, 0, "", Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = spool.Close()
			_ = os.Remove(spool.Name())
		}
	}()

	digest := sha256.New()
	limit := s.config.MaxFileSize.Int64()
	size, err = io.Copy(io.MultiWriter(spool, digest), io.LimitReader(body, limit+1))
	if err != nil {
		// client went away mid-body; nothing durable happened yet
		return nil, 0, "", ErrValidation.Wrap(err)
	}
	if size > limit {
		return nil, 0, "", ErrTooLarge.New("limit is %s", s.config.MaxFileSize)
	}
	if size == 0 {
		return nil, 0, "", ErrValidation.New("file is empty")
	}

	return spool, size, hex.EncodeToString(digest.Sum(nil)), nil
}

// put retries transient object store failures with a fixed delay.
// Cancellation is cooperative: each attempt boundary checks the context.
func (s *Service) put(ctx context.Context, key string, spool *os.File, size int64, contentType string) (err error) {
	defer mon.Task()(&ctx)(&err)

	attempts := s.config.PutAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return ErrStorage.Wrap(err)
		}
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return Error.Wrap(err)
		}

		err = s.store.Put(ctx, key, spool, size, contentType)
		if err == nil {
			return nil
		}
		if !objectstore.Transient(err) || attempt >= attempts {
			return ErrStorage.Wrap(err)
		}

		s.log.Debug("retrying object store put",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !sync2.Sleep(ctx, s.config.RetryDelay) {
			return ErrStorage.Wrap(ctx.Err())
		}
	}
}

// TestSetNow overrides the clock, for tests.
func (s *Service) TestSetNow(nowFn func() time.Time) {
	s.nowFn = nowFn
}
