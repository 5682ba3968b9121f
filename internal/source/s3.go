package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/mjrousos/video-analysis-exploration/internal/filehandler"
)

// S3PutAPI is the subset of the S3 client used for staging.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3PresignAPI is the subset of the S3 presign client used for staging.
type S3PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Resolver uploads the video to S3 and returns a presigned GET URL.
type S3Resolver struct {
	client    S3PutAPI
	presigner S3PresignAPI
	bucket    string
	prefix    string
	expiry    time.Duration
}

// NewS3Resolver creates an S3Resolver.
func NewS3Resolver(client S3PutAPI, presigner S3PresignAPI, bucket, prefix string, expiry time.Duration) *S3Resolver {
	return &S3Resolver{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		expiry:    expiry,
	}
}

// NewS3ResolverFromConfig loads the default AWS config (optionally pinned to
// region) and creates an S3Resolver.
func NewS3ResolverFromConfig(ctx context.Context, region, bucket, prefix string, expiry time.Duration) (*S3Resolver, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")

	client := s3.NewFromConfig(cfg)
	return NewS3Resolver(client, s3.NewPresignClient(client), bucket, prefix, expiry), nil
}

func (r *S3Resolver) Resolve(ctx context.Context, localPath string) (string, error) {
	key := objectKey(r.prefix, localPath)

	f, size, err := openForUpload(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	log.Info().
		Str("bucket", r.bucket).
		Str("key", key).
		Int64("size_bytes", size).
		Msg("Staging video in S3")
	start := time.Now()

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &r.bucket,
		Key:           &key,
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(filehandler.GetMIMEType(filepath.Ext(localPath))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload video to S3: %w", err)
	}

	presigned, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &r.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = r.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}

	log.Info().
		Str("key", key).
		Dur("duration", time.Since(start)).
		Dur("expiry", r.expiry).
		Msg("Video staged in S3")
	return presigned.URL, nil
}
