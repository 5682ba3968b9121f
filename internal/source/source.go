// Package source makes a local video reachable by Video Indexer. The service
// only accepts a URL, so the file is either already published (url backend)
// or staged in object storage first and handed over as a blob URL or a
// time-limited signed URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
)

// Backend names accepted in configuration.
const (
	BackendURL       = "url"
	BackendAzureBlob = "azblob"
	BackendS3        = "s3"
	BackendGCS       = "gcs"
)

// DefaultPresignExpiry bounds how long a signed URL stays valid. Video
// Indexer downloads the file shortly after the upload call.
const DefaultPresignExpiry = 4 * time.Hour

// Resolver turns a local file into a URL the service can download.
type Resolver interface {
	Resolve(ctx context.Context, localPath string) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend           string
	URL               string
	Bucket            string
	Prefix            string
	Container         string
	StorageAccountURL string
	PresignExpiry     time.Duration
	Region            string
	CredentialsFile   string
}

// ErrUnknownBackend is returned by New for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown source backend")

// New creates the Resolver for opts.Backend. azureCred is only used by the
// azblob backend.
func New(ctx context.Context, opts Options, azureCred azcore.TokenCredential) (Resolver, error) {
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = DefaultPresignExpiry
	}

	switch opts.Backend {
	case BackendURL, "":
		if opts.URL == "" {
			return nil, errors.New("source.url is required for the url backend")
		}
		return Static(opts.URL), nil

	case BackendAzureBlob:
		if opts.StorageAccountURL == "" || opts.Container == "" {
			return nil, errors.New("source.storageAccountURL and source.container are required for the azblob backend")
		}
		r, err := NewAzureBlobResolver(opts.StorageAccountURL, opts.Container, opts.Prefix, azureCred)
		if err != nil {
			return nil, err
		}
		return r, nil

	case BackendS3:
		if opts.Bucket == "" {
			return nil, errors.New("source.bucket is required for the s3 backend")
		}
		r, err := NewS3ResolverFromConfig(ctx, opts.Region, opts.Bucket, opts.Prefix, opts.PresignExpiry)
		if err != nil {
			return nil, err
		}
		return r, nil

	case BackendGCS:
		if opts.Bucket == "" {
			return nil, errors.New("source.bucket is required for the gcs backend")
		}
		r, err := NewGCSResolver(ctx, opts.Bucket, opts.Prefix, opts.PresignExpiry, opts.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return r, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// UsesManagedIdentity reports whether the service should download with its
// managed identity. Signed URLs carry their own authorization.
func UsesManagedIdentity(backend string, configured bool) bool {
	switch backend {
	case BackendS3, BackendGCS:
		return false
	case BackendAzureBlob:
		return true
	default:
		return configured
	}
}

// Close releases the resources held by r, if any.
func Close(r Resolver) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Static always resolves to the same URL.
type Static string

func (s Static) Resolve(ctx context.Context, localPath string) (string, error) {
	return string(s), nil
}

// newObjectID is replaced in tests.
var newObjectID = uuid.NewString

// objectKey returns {prefix}/{uuid}/{basename}.
func objectKey(prefix, localPath string) string {
	return path.Join(prefix, newObjectID(), filepath.Base(localPath))
}

// openForUpload opens localPath and returns it with its size.
func openForUpload(localPath string) (*os.File, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open video: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat video: %w", err)
	}
	return f, info.Size(), nil
}
