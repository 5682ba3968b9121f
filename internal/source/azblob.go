package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/rs/zerolog/log"

	"github.com/mjrousos/video-analysis-exploration/internal/filehandler"
)

// AzureBlobResolver uploads the video to a blob container and returns the
// plain blob URL. Video Indexer reads it with its managed identity, which
// needs Storage Blob Data Reader on the container.
type AzureBlobResolver struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureBlobResolver creates an AzureBlobResolver authenticated with cred.
func NewAzureBlobResolver(accountURL, container, prefix string, cred azcore.TokenCredential) (*AzureBlobResolver, error) {
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob.NewClient: %w", err)
	}
	return &AzureBlobResolver{client: client, container: container, prefix: prefix}, nil
}

func (r *AzureBlobResolver) Resolve(ctx context.Context, localPath string) (string, error) {
	name := objectKey(r.prefix, localPath)

	f, size, err := openForUpload(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	log.Info().
		Str("container", r.container).
		Str("blob", name).
		Int64("size_bytes", size).
		Msg("Staging video in Azure Blob Storage")
	start := time.Now()

	contentType := filehandler.GetMIMEType(filepath.Ext(localPath))
	_, err = r.client.UploadFile(ctx, r.container, name, f, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload video to blob storage: %w", err)
	}

	blobURL := r.client.ServiceClient().NewContainerClient(r.container).NewBlobClient(name).URL()

	log.Info().
		Str("blob", name).
		Dur("duration", time.Since(start)).
		Msg("Video staged in Azure Blob Storage")
	return blobURL, nil
}
