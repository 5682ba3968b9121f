package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/mjrousos/video-analysis-exploration/internal/filehandler"
)

// GCSResolver uploads the video to Cloud Storage and returns a V4 signed URL.
type GCSResolver struct {
	client *storage.Client
	bucket string
	prefix string
	expiry time.Duration
}

// NewGCSResolver creates a GCSResolver. Without credentialsFile the
// application default credentials are used; signing then requires a
// service account identity.
func NewGCSResolver(ctx context.Context, bucket, prefix string, expiry time.Duration, credentialsFile string) (*GCSResolver, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSResolver{client: client, bucket: bucket, prefix: prefix, expiry: expiry}, nil
}

func (r *GCSResolver) Resolve(ctx context.Context, localPath string) (string, error) {
	key := objectKey(r.prefix, localPath)

	f, size, err := openForUpload(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	log.Info().
		Str("bucket", r.bucket).
		Str("object", key).
		Int64("size_bytes", size).
		Msg("Staging video in Cloud Storage")
	start := time.Now()

	bucket := r.client.Bucket(r.bucket)
	wc := bucket.Object(key).NewWriter(ctx)
	wc.ContentType = filehandler.GetMIMEType(filepath.Ext(localPath))
	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return "", fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	signed, err := bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(r.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("sign URL: %w", err)
	}

	log.Info().
		Str("object", key).
		Dur("duration", time.Since(start)).
		Msg("Video staged in Cloud Storage")
	return signed, nil
}

// Close releases the storage client.
func (r *GCSResolver) Close() error {
	return r.client.Close()
}
