// Package collection mirrors a remote per-user document collection in
// memory. Backends deliver full snapshots on every change; Store replaces
// its local view wholesale with each one.
package collection

import (
	"context"
	"fmt"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// Path names one user's collection, e.g.
// artifacts/{app}/users/{uid}/extracted_data.
type Path string

// UserPath builds the collection path for uid inside appID.
func UserPath(appID, uid string) Path {
	return Path(fmt.Sprintf("artifacts/%s/users/%s/extracted_data", appID, uid))
}

// Snapshot is the full content of a collection at one point. Seq increases
// strictly across the snapshots of one subscription.
type Snapshot struct {
	Seq  uint64
	Docs []model.Document
}

// Backend is a durable document collection with a change feed.
type Backend interface {
	// Create stores rec and returns its new identifier.
	Create(ctx context.Context, path Path, rec model.Record) (string, error)
	// List returns every document under path.
	List(ctx context.Context, path Path) ([]model.Document, error)
	// Delete removes one document.
	Delete(ctx context.Context, path Path, id string) error
	// Subscribe delivers the current snapshot, then a new one after every
	// change. The channel closes when ctx is done or the feed fails.
	Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error)
	Close() error
}
