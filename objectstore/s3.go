// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// S3Store implements Store on top of an S3 or S3-compatible endpoint.
type S3Store struct {
	log    *zap.Logger
	client *s3.Client
	bucket string
}

// NewS3Store opens a client against the configured endpoint and bucket.
func NewS3Store(ctx context.Context, log *zap.Logger, config Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, Error.New("bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.PathStyle
	})

	return &S3Store{log: log, client: client, bucket: config.Bucket}, nil
}

// Put writes an object under key.
func (store *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(store.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object succeeds.
func (store *S3Store) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Ping checks the bucket is reachable.
func (store *S3Store) Ping(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(store.bucket),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify sorts S3 failures into transient and permanent. Throttling and
// server-side errors are retried; other client errors are not.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var responseErr *smithyhttp.ResponseError
	if errors.As(err, &responseErr) {
		status := responseErr.HTTPStatusCode()
		switch {
		case status == http.StatusTooManyRequests:
			return ErrTransient.Wrap(err)
		case status >= 500:
			return ErrTransient.Wrap(err)
		case status >= 400:
			return ErrPermanent.Wrap(err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return ErrTransient.Wrap(err)
		}
		return ErrPermanent.Wrap(err)
	}

	// connection level failures are worth another attempt
	return ErrTransient.Wrap(err)
}
