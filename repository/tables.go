package repository

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
)

// TableRepository stores schemaless records in arbitrary collections.
// Table names get the collection prefix like every other collection.
type TableRepository struct {
	backend storage.Backend
	opts    *options
	logger  *slog.Logger
}

var _ storage.TableRepository = (*TableRepository)(nil)

func newTableRepository(backend storage.Backend, o *options) *TableRepository {
	return &TableRepository{
		backend: backend,
		opts:    o,
		logger:  o.logger.With("repository", "tables"),
	}
}

func (r *TableRepository) table(name string) (*storage.Collection[map[string]any], error) {
	if name == "" {
		return nil, fmt.Errorf("%w: table name is required", storage.ErrInvalidQuery)
	}
	return newCollection[map[string]any](r.backend, r.opts, name, core.OrderBy{}), nil
}

// CreateTable is a no-op: collections come into existence on first write.
func (r *TableRepository) CreateTable(_ context.Context, table string) error {
	if _, err := r.table(table); err != nil {
		return err
	}
	r.logger.Debug("create table is a no-op for a schemaless store", "table", table)
	return nil
}

// AlterTable is a no-op: documents carry whatever fields they are written with.
func (r *TableRepository) AlterTable(_ context.Context, table string) error {
	if _, err := r.table(table); err != nil {
		return err
	}
	r.logger.Debug("alter table is a no-op for a schemaless store", "table", table)
	return nil
}

// ClearTable deletes every record of a table.
func (r *TableRepository) ClearTable(ctx context.Context, table string) error {
	coll, err := r.table(table)
	if err != nil {
		return err
	}
	n, err := coll.DeleteWhere(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to clear table %s: %w", table, err)
	}
	r.logger.Info("table cleared", "table", table, "records", n)
	return nil
}

// DropTable deletes every record of a table. There is no schema left to remove.
func (r *TableRepository) DropTable(ctx context.Context, table string) error {
	return r.ClearTable(ctx, table)
}

// Insert stores a record under its "id" field, or a generated id when it has none.
func (r *TableRepository) Insert(ctx context.Context, table string, record map[string]any) error {
	return r.BatchInsert(ctx, table, []map[string]any{record})
}

// BatchInsert stores records in batches. Records without createdAt or
// updatedAt get the insert time, like every typed record.
func (r *TableRepository) BatchInsert(ctx context.Context, table string, records []map[string]any) error {
	coll, err := r.table(table)
	if err != nil {
		return err
	}
	now := coll.Now()
	keyed := make([]storage.Keyed[map[string]any], len(records))
	for i, record := range records {
		id, _ := record["id"].(string)
		copied := maps.Clone(record)
		if copied == nil {
			copied = map[string]any{}
		}
		for _, field := range []string{"createdAt", "updatedAt"} {
			if copied[field] == nil {
				copied[field] = now
			}
		}
		keyed[i] = storage.Keyed[map[string]any]{ID: id, Record: &copied}
	}
	if err := coll.SetMany(ctx, keyed); err != nil {
		return fmt.Errorf("failed to insert %d records into %s: %w", len(records), table, err)
	}
	return nil
}

// Load returns the first record whose fields equal keys, or nil, nil.
// Time values come back as time.Time on every backend.
func (r *TableRepository) Load(ctx context.Context, table string, keys map[string]any) (map[string]any, error) {
	if _, err := r.table(table); err != nil {
		return nil, err
	}
	filters := make([]storage.Filter, 0, len(keys))
	for _, field := range slices.Sorted(maps.Keys(keys)) {
		filters = append(filters, storage.Eq(field, keys[field]))
	}
	docs, err := r.backend.Query(ctx, storage.Query{
		Collection: r.opts.name(table),
		Filters:    filters,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0].Data, nil
}
