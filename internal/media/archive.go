package media

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
)

// Archiver copies raw inputs to a bucket before they are extracted.
type Archiver struct {
	store  ObjectStore
	bucket string
	uid    string
	now    func() time.Time
}

// NewArchiver creates an Archiver writing under raw/{uid}/ in bucket.
func NewArchiver(store ObjectStore, bucket, uid string) *Archiver {
	return &Archiver{store: store, bucket: bucket, uid: uid, now: time.Now}
}

// ObjectName is where blob will be written.
func (a *Archiver) ObjectName(b *Blob) string {
	return path.Join("raw", a.uid, a.now().UTC().Format("20060102T150405.000Z")+"-"+path.Base(b.Name))
}

// Archive writes blob and returns its gs:// URI. Failures are logged and
// returned; callers continue with extraction either way.
func (a *Archiver) Archive(ctx context.Context, b *Blob) (string, error) {
	object := a.ObjectName(b)
	if err := a.store.Write(ctx, a.bucket, object, b.MIMEType, b.Data); err != nil {
		zap.L().Warn("media: archive failed", zap.String("file", b.Name), zap.Error(err))
		return "", err
	}
	uri := "gs://" + a.bucket + "/" + object
	zap.L().Debug("media: archived", zap.String("uri", uri))
	return uri, nil
}
