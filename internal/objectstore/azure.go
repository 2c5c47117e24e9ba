package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/google/uuid"
)

// AzureStore implements Store over Azure Blob Storage.
type AzureStore struct {
	client *azblob.Client
	credential *azblob.SharedKeyCredential
	container string
}

func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, fmt.Errorf("objectstore: azure requires account name, account key, and container")
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("objectstore: azure credentials: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: azure client: %w", err)
	}
	return &AzureStore{client: client, credential: cred, container: container}, nil
}

func (a *AzureStore) Put(ctx context.Context, orgID, executionID, mimeType, filename string, data io.Reader) (string, error) {
	id := uuid.New().String()
	metadata := map[string]*string{"organization_id": strPtr(orgID)}
	if executionID != "" {
		metadata["execution_id"] = strPtr(executionID)
	}
	if filename != "" {
		metadata["filename"] = strPtr(filename)
	}

	_, err := a.client.UploadStream(ctx, a.container, key(id), data, &azblob.UploadStreamOptions{
			Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: azure upload: %w", err)
	}
	return id, nil
}

func (a *AzureStore) Get(ctx context.Context, id string) (io.ReadCloser, string, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key(id), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, "", &ErrNotFound{ID: id}
		}
		return nil, "", fmt.Errorf("objectstore: azure download: %w", err)
	}
	mimeType := ""
	if resp.ContentType != nil {
		mimeType = *resp.ContentType
	}
	return resp.Body, mimeType, nil
}

func (a *AzureStore) Presign(ctx context.Context, id string, ttl time.Duration) (string, error) {
	ttl = clampTTL(ttl)
	perms := sas.BlobPermissions{Read: true}
	url, err := a.client.ServiceClient.NewContainerClient(a.container).NewBlobClient(key(id)).
	GetSASURL(perms, time.Now().Add(ttl), nil)
	if err != nil {
		return "", fmt.Errorf("objectstore: azure presign: %w", err)
	}
	return url, nil
}

func strPtr(s string) *string { return &s }
