package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/poiesic/agentstore/storage"
)

// Backend wraps a BadgerDB instance and stores documents in it.
// Queries scan the collection prefix and filter in memory.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Backend = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	return OpenBackendWithLogger(filePath, inMemory, slog.Default())
}

// OpenBackendWithLogger is OpenBackend with an explicit logger for badger's own output.
func OpenBackendWithLogger(filePath string, inMemory bool, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// NewID returns a random UUID.
func (b *Backend) NewID(_ string) string {
	return uuid.NewString()
}

func (b *Backend) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Get returns a single document.
func (b *Backend) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}
	var doc *storage.Document
	err := b.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, collection, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetAll returns the documents that exist among ids.
func (b *Backend) GetAll(ctx context.Context, collection string, ids []string) ([]*storage.Document, error) {
	if len(ids) > storage.MaxGetAllIDs {
		return nil, fmt.Errorf("%w: %d ids requested, limit is %d", storage.ErrTooManyValues, len(ids), storage.MaxGetAllIDs)
	}
	if err := b.ready(ctx); err != nil {
		return nil, err
	}
	docs := make([]*storage.Document, 0, len(ids))
	err := b.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, collection, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Query returns the documents matching q.
func (b *Backend) Query(ctx context.Context, q storage.Query) ([]*storage.Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if err := b.ready(ctx); err != nil {
		return nil, err
	}
	docs, err := b.scan(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(q.OrderBy) > 0 {
		// Documents without an ordered field are excluded, matching Firestore.
		docs = slices.DeleteFunc(docs, func(d *storage.Document) bool {
			for _, o := range q.OrderBy {
				if _, ok := lookup(d.Data, o.Field); !ok {
					return true
				}
			}
			return false
		})
	}
	sortDocuments(docs, q.OrderBy)

	if q.Offset > 0 {
		if q.Offset >= len(docs) {
			return []*storage.Document{}, nil
		}
		docs = docs[q.Offset:]
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Count returns how many documents match the filters of q.
func (b *Backend) Count(ctx context.Context, q storage.Query) (int, error) {
	if err := validateQuery(q); err != nil {
		return 0, err
	}
	if err := b.ready(ctx); err != nil {
		return 0, err
	}
	docs, err := b.scan(ctx, storage.Query{Collection: q.Collection, Filters: q.Filters})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Commit applies ops in a single read-write transaction.
func (b *Backend) Commit(ctx context.Context, ops []storage.WriteOp) error {
	if len(ops) > storage.MaxBatchSize {
		return fmt.Errorf("%w: %d writes in one commit, limit is %d", storage.ErrTooManyValues, len(ops), storage.MaxBatchSize)
	}
	if len(ops) == 0 {
		return nil
	}
	if err := b.ready(ctx); err != nil {
		return err
	}

	now := b.now().UTC()
	return b.WithTx(func(tx *badger.Txn) error {
		for _, op := range ops {
			if err := applyWrite(tx, op, now); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

func applyWrite(tx *badger.Txn, op storage.WriteOp, now time.Time) error {
	if op.ID == "" {
		return fmt.Errorf("%w: write to %s without a document id", storage.ErrInvalidQuery, op.Collection)
	}
	key := makeDocumentKey(op.Collection, op.ID)

	if op.Kind == storage.WriteDelete {
		return tx.Delete(key)
	}

	existing, err := readDocument(tx, op.Collection, op.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	createTime := now
	data := op.Data
	if existing != nil {
		createTime = existing.CreateTime
		if op.Kind == storage.WriteMerge {
			data = mergePaths(existing.Data, op.Data)
		}
	} else if op.Kind == storage.WriteMerge {
		data = mergePaths(nil, op.Data)
	}
	if data == nil {
		data = map[string]any{}
	}

	value, err := encodeDocument(data, createTime, now)
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// scan iterates the collection prefix and returns every document passing the filters.
func (b *Backend) scan(ctx context.Context, q storage.Query) ([]*storage.Document, error) {
	var docs []*storage.Document

	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionPrefix(q.Collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			id := documentIDFromKey(q.Collection, item.Key())

			var doc *storage.Document
			err := item.Value(func(val []byte) error {
				var err error
				doc, err = decodeDocument(id, val)
				return err
			})
			if err != nil {
				return err
			}
			if matchesAll(doc.Data, q.Filters) {
				docs = append(docs, doc)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func readDocument(tx *badger.Txn, collection, id string) (*storage.Document, error) {
	item, err := tx.Get(makeDocumentKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &storage.NotFoundError{Kind: collection, ID: id}
	}
	if err != nil {
		return nil, err
	}
	var doc *storage.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = decodeDocument(id, val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func validateQuery(q storage.Query) error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", storage.ErrInvalidQuery)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return fmt.Errorf("%w: negative offset or limit", storage.ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if f.Op != storage.OpIn {
			continue
		}
		values, ok := f.Value.([]any)
		if !ok {
			return fmt.Errorf("%w: in filter on %s needs []any", storage.ErrInvalidQuery, f.Field)
		}
		if len(values) > storage.MaxInFilterValues {
			return fmt.Errorf("%w: in filter on %s has %d values, limit is %d",
				storage.ErrTooManyValues, f.Field, len(values), storage.MaxInFilterValues)
		}
	}
	return nil
}
