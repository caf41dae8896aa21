package media

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCSStore is an ObjectStore on Cloud Storage using Application Default
// Credentials.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore opens a storage client.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "media: create storage client")
	}
	return &GCSStore{client: client}, nil
}

// Read downloads an object.
func (s *GCSStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "media: open gs://%s/%s", bucket, object)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "media: read gs://%s/%s", bucket, object)
	}
	return data, nil
}

// Write uploads data, finalising the object on success.
func (s *GCSStore) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "media: write gs://%s/%s", bucket, object)
	}
	if err := w.Close(); err != nil {
		return eris.Wrapf(err, "media: finalize gs://%s/%s", bucket, object)
	}
	return nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
