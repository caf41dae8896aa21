// Package media loads input files from disk or Cloud Storage and archives
// raw inputs to a bucket.
package media

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Blob is a loaded input file.
type Blob struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ObjectStore reads and writes bucket objects.
type ObjectStore interface {
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", eris.Errorf("media: invalid GCS URI %q", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", eris.Errorf("media: GCS URI has no object path: %q", uri)
	}
	return parts[0], parts[1], nil
}

// IsGCSURI reports whether src names a Cloud Storage object.
func IsGCSURI(src string) bool {
	return strings.HasPrefix(src, "gs://")
}

// Loader reads local paths and gs:// URIs.
type Loader struct {
	store ObjectStore
}

// NewLoader creates a Loader. store may be nil when only local paths are
// used.
func NewLoader(store ObjectStore) *Loader {
	return &Loader{store: store}
}

// Load reads src and detects its MIME type from the extension, falling back
// to content sniffing.
func (l *Loader) Load(ctx context.Context, src string) (*Blob, error) {
	var (
		name string
		data []byte
		err  error
	)
	if IsGCSURI(src) {
		if l.store == nil {
			return nil, eris.Errorf("media: no object store configured for %s", src)
		}
		bucket, object, perr := ParseGCSURI(src)
		if perr != nil {
			return nil, perr
		}
		name = path.Base(object)
		data, err = l.store.Read(ctx, bucket, object)
		if err != nil {
			return nil, err
		}
	} else {
		name = filepath.Base(src)
		data, err = os.ReadFile(src)
		if err != nil {
			return nil, eris.Wrapf(err, "media: read %s", src)
		}
	}
	return &Blob{Name: name, MIMEType: DetectMIME(name, data), Data: data}, nil
}

// DetectMIME guesses a MIME type from the file name, then the content.
func DetectMIME(name string, data []byte) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		return mt
	}
	return http.DetectContentType(data)
}
