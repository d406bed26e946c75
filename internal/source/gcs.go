package source

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSStore reads objects from a Google Cloud Storage bucket through the JSON API.
type GCSStore struct {
	svc    *storage.Service
	bucket string
}

// NewGCSStore creates a GCSStore. Credentials come from opts, falling back to
// Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

// List returns objects under prefix in the bucket's lexical order, following
// pagination. Folder placeholder objects (names ending in "/") are skipped.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]BlobRef, error) {
	var refs []BlobRef
	err := g.svc.Objects.List(g.bucket).Prefix(prefix).Fields("items(name,size),nextPageToken").
		Pages(ctx, func(objs *storage.Objects) error {
			for _, o := range objs.Items {
				if len(o.Name) > 0 && o.Name[len(o.Name)-1] == '/' {
					continue
				}
				refs = append(refs, BlobRef{Name: o.Name, Size: int64(o.Size)})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing gs://%s/%s: %w", g.bucket, prefix, err)
	}
	return refs, nil
}

// Download returns the object's contents.
func (g *GCSStore) Download(ctx context.Context, ref BlobRef) ([]byte, error) {
	resp, err := g.svc.Objects.Get(g.bucket, ref.Name).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("downloading gs://%s/%s: %w", g.bucket, ref.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", g.bucket, ref.Name, err)
	}
	return data, nil
}
