package collection

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// FirestoreBackend stores documents in Cloud Firestore and follows changes
// with a query snapshot listener.
type FirestoreBackend struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed collection for projectID.
func NewFirestore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreBackend, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "firestore: create client")
	}
	return &FirestoreBackend{client: client}, nil
}

// Close closes the client.
func (f *FirestoreBackend) Close() error {
	return f.client.Close()
}

func (f *FirestoreBackend) Create(ctx context.Context, path Path, rec model.Record) (string, error) {
	data, err := model.ToMap(rec)
	if err != nil {
		return "", err
	}
	ref, _, err := f.client.Collection(string(path)).Add(ctx, data)
	if err != nil {
		return "", eris.Wrap(err, "firestore: add document")
	}
	return ref.ID, nil
}

func (f *FirestoreBackend) List(ctx context.Context, path Path) ([]model.Document, error) {
	iter := f.client.Collection(string(path)).Documents(ctx)
	defer iter.Stop()

	var docs []model.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "firestore: list documents")
		}
		doc, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *FirestoreBackend) Delete(ctx context.Context, path Path, id string) error {
	_, err := f.client.Collection(string(path)).Doc(id).Delete(ctx)
	return eris.Wrapf(err, "firestore: delete document %s", id)
}

func (f *FirestoreBackend) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	it := f.client.Collection(string(path)).Snapshots(ctx)
	ch := make(chan Snapshot, 1)

	go func() {
		defer close(ch)
		defer it.Stop()
		var seq uint64
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Error("firestore: snapshot listener stopped", zap.String("path", string(path)), zap.Error(err))
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				zap.L().Warn("firestore: read snapshot documents", zap.Error(err))
				continue
			}
			docs := make([]model.Document, 0, len(snaps))
			for _, s := range snaps {
				doc, err := decodeSnapshot(s)
				if err != nil {
					zap.L().Warn("firestore: skip undecodable document", zap.String("id", s.Ref.ID), zap.Error(err))
					continue
				}
				docs = append(docs, doc)
			}
			seq++
			offer(ch, Snapshot{Seq: seq, Docs: docs})
		}
	}()
	return ch, nil
}

func decodeSnapshot(s *firestore.DocumentSnapshot) (model.Document, error) {
	rec, err := model.DecodeMap(s.Data())
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "firestore: document %s", s.Ref.ID)
	}
	return model.Document{ID: s.Ref.ID, Record: rec}, nil
}
