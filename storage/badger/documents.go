package badger

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// NextID allocates the next unused numeric id.
// Ids already taken by caller-supplied documents are skipped.
func (r *DocumentRepository) NextID(ctx context.Context) (core.ID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		next, err := r.idSeq.Next()
		if err != nil {
			return "", err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if next == 0 {
			continue
		}

		id := core.ID(strconv.FormatUint(next, 10))
		var exists bool
		err = r.backend.View(func(tx *badger.Txn) error {
			_, err := tx.Get(makeDocumentKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			exists = true
			return nil
		})
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

// PutDocuments stores documents in one transaction, replacing existing ids.
func (r *DocumentRepository) PutDocuments(ctx context.Context, docs ...*core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	values := make([][]byte, len(docs))
	for i, doc := range docs {
		if doc.InsertedAt.IsZero() {
			doc.InsertedAt = now
		}
		value, err := storage.MarshalDocument(doc)
		if err != nil {
			return err
		}
		values[i] = value
	}

	return r.backend.Update(func(tx *badger.Txn) error {
		for i, doc := range docs {
			if err := tx.Set(makeDocumentKey(doc.ID), values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDocuments retrieves documents by ID, skipping ids that do not exist.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	docs := make([]*core.Document, 0, len(ids))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := r.readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocuments removes documents by ID and reports how many existed.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) (int, error) {
	var deleted int
	err := r.backend.Update(func(tx *badger.Txn) error {
		deleted = 0
		for _, id := range ids {
			key := makeDocumentKey(id)
			_, err := tx.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// AllDocuments returns every document ordered by core.CompareIDs.
func (r *DocumentRepository) AllDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		return core.CompareIDs(a.ID, b.ID)
	})
	return docs, nil
}

// CountDocuments counts stored documents without decoding them.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// readDocument loads one document, returning nil when the key is absent.
func (r *DocumentRepository) readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = documentIDFromKey(key)
	}
	return doc, nil
}
