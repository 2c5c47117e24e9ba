package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GCSStore implements Store over a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, credentialsJSON, bucket string) (*GCSStore, error) {
	if credentialsJSON == "" || bucket == "" {
		return nil, fmt.Errorf("objectstore: gcs requires credentials JSON and bucket")
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("objectstore: create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) Put(ctx context.Context, orgID, executionID, mimeType, filename string, data io.Reader) (string, error) {
	id := uuid.New().String()
	obj := g.client.Bucket(g.bucket).Object(key(id))
	w := obj.NewWriter(ctx)
	w.ContentType = mimeType
	w.Metadata = map[string]string{"organization_id": orgID}
	if executionID != "" {
		w.Metadata["execution_id"] = executionID
	}
	if filename != "" {
		w.Metadata["filename"] = filename
	}

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objectstore: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objectstore: gcs close: %w", err)
	}
	return id, nil
}

func (g *GCSStore) Get(ctx context.Context, id string) (io.ReadCloser, string, error) {
	obj := g.client.Bucket(g.bucket).Object(key(id))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, "", &ErrNotFound{ID: id}
		}
		return nil, "", fmt.Errorf("objectstore: gcs read: %w", err)
	}
	return r, r.Attrs.ContentType, nil
}

func (g *GCSStore) Presign(ctx context.Context, id string, ttl time.Duration) (string, error) {
	ttl = clampTTL(ttl)
	url, err := g.client.Bucket(g.bucket).SignedURL(key(id), &storage.SignedURLOptions{
			Method: "GET",
			Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: gcs presign: %w", err)
	}
	return url, nil
}
