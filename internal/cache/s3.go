package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mapcache-go/mapcache/internal/apperr"
)

// S3 is a Cache backend over github.com/aws/aws-sdk-go-v2/service/s3. The
// SDK's own http.Client already pools transport connections, so unlike the
// memcache/redis backends this one talks to a single long-lived *s3.Client
// rather than going through internal/pool — there is nothing pool.Pool
// would add beyond what the SDK's transport already does.
type S3 struct {
	CacheName string
	client    *s3.Client
	Bucket    string
	Prefix    string
	Logger    *slog.Logger
}

// NewS3 loads the default AWS config chain (env vars, shared config,
// instance role) the way the SDK's own examples do.
func NewS3(ctx context.Context, name, bucket, prefix, region string, logger *slog.Logger) (*S3, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, 500, err, "s3 cache %q: load AWS config", name)
	}
	return &S3{
		CacheName: name,
		client:    s3.NewFromConfig(cfg),
		Bucket:    bucket,
		Prefix:    prefix,
		Logger:    logger,
	}, nil
}

func (s *S3) Name() string { return s.CacheName }

func (s *S3) objectKey(tile *Tile) string {
	if s.Prefix == "" {
		return tile.Key()
	}
	return s.Prefix + "/" + tile.Key()
}

func (s *S3) Get(ctx context.Context, tile *Tile) (Result, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(tile)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return Miss, nil
		}
		return Failure, apperr.BackendFatal(err, "s3 cache %q: get object %s", s.CacheName, s.objectKey(tile))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Failure, apperr.BackendFatal(err, "s3 cache %q: read body %s", s.CacheName, s.objectKey(tile))
	}
	tile.EncodedData = data
	if out.LastModified != nil {
		tile.MTime = *out.LastModified
	}
	return Success, nil
}

func (s *S3) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "s3 cache %q: tile has no encoded data", s.CacheName)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(tile)),
		Body:   bytes.NewReader(tile.EncodedData),
	})
	if err != nil {
		return apperr.BackendFatal(err, "s3 cache %q: put object %s", s.CacheName, s.objectKey(tile))
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, tile *Tile) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(tile)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return false, nil
		}
		return false, apperr.BackendFatal(err, "s3 cache %q: head object %s", s.CacheName, s.objectKey(tile))
	}
	return true, nil
}

func (s *S3) Delete(ctx context.Context, tile *Tile) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(tile)),
	})
	if err != nil {
		return apperr.BackendFatal(err, "s3 cache %q: delete object %s", s.CacheName, s.objectKey(tile))
	}
	return nil
}

func (s *S3) MultiSet(ctx context.Context, tiles []*Tile) error {
	return DefaultMultiSet(ctx, s, tiles)
}
