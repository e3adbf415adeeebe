// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/core"
)

const (
	idField        = "id"
	createdAtField = "createdAt"
	updatedAtField = "updatedAt"
)

// Collection is the generic access path shared by every record kind: typed
// get, list, paginate, upsert, merge and delete over one backend collection.
//
// Writes stamp createdAt (when unset) and updatedAt (always) on record types
// that declare those fields.
type Collection[T any] struct {
	backend      Backend
	name         string
	defaultOrder core.OrderBy
	pool         *ants.Pool
	logger       *slog.Logger
	now          func() time.Time
	hasCreatedAt bool
	hasUpdatedAt bool
}

// CollectionOption configures a Collection.
type CollectionOption func(*collectionOptions)

type collectionOptions struct {
	pool   *ants.Pool
	logger *slog.Logger
	now    func() time.Time
}

// WithPool runs chunked reads concurrently on pool.
func WithPool(pool *ants.Pool) CollectionOption {
	return func(o *collectionOptions) {
		o.pool = pool
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) CollectionOption {
	return func(o *collectionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) CollectionOption {
	return func(o *collectionOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewCollection binds record type T to a backend collection.
// defaultOrder applies when a listing names no order; its direction defaults to ascending.
func NewCollection[T any](backend Backend, name string, defaultOrder core.OrderBy, opts ...CollectionOption) *Collection[T] {
	options := &collectionOptions{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(options)
	}
	if defaultOrder.Field == "" {
		defaultOrder.Field = DefaultOrderField
	}
	if defaultOrder.Direction == "" {
		defaultOrder.Direction = core.SortAsc
	}

	recordType := reflect.TypeFor[T]()
	return &Collection[T]{
		backend:      backend,
		name:         name,
		defaultOrder: defaultOrder,
		pool:         options.pool,
		logger:       options.logger.With("collection", name),
		now:          options.now,
		hasCreatedAt: hasField(recordType, createdAtField),
		hasUpdatedAt: hasField(recordType, updatedAtField),
	}
}

// Name returns the backend collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Backend returns the backend the collection writes to.
func (c *Collection[T]) Backend() Backend {
	return c.backend
}

// NewID returns a fresh document id for the collection.
func (c *Collection[T]) NewID() string {
	return c.backend.NewID(c.name)
}

// Now returns the collection's current time.
func (c *Collection[T]) Now() time.Time {
	return c.now()
}

// Get returns the record with id, or nil, nil when it doesn't exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return Decode[T](doc)
}

// GetMany returns the records that exist among ids, in no particular order.
func (c *Collection[T]) GetMany(ctx context.Context, ids ...string) ([]*T, error) {
	docs, err := GetMany(ctx, c.backend, c.pool, c.name, ids)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// Find returns every record matching filters, sorted by order
// (or the collection default when order.Field is empty). A positive limit caps the result.
func (c *Collection[T]) Find(ctx context.Context, filters []Filter, order core.OrderBy, limit int) ([]*T, error) {
	docs, err := c.backend.Query(ctx, Query{
		Collection: c.name,
		Filters:    filters,
		OrderBy:    []Order{c.order(order)},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// Slice returns the window [offset, offset+limit) of the records matching
// filters. A zero limit returns everything after offset.
func (c *Collection[T]) Slice(ctx context.Context, filters []Filter, order core.OrderBy, offset, limit int) ([]*T, error) {
	docs, err := c.backend.Query(ctx, Query{
		Collection: c.name,
		Filters:    filters,
		OrderBy:    []Order{c.order(order)},
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// FindIn returns every record matching filters whose field is one of values.
// Large value lists are split into chunks; the combined result is not ordered.
func (c *Collection[T]) FindIn(ctx context.Context, filters []Filter, field string, values []any) ([]*T, error) {
	docs, err := QueryIn(ctx, c.backend, c.pool, Query{Collection: c.name, Filters: filters}, field, values)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](docs)
}

// FindDocuments is Find returning raw documents.
func (c *Collection[T]) FindDocuments(ctx context.Context, filters []Filter, order core.OrderBy, limit int) ([]*Document, error) {
	return c.backend.Query(ctx, Query{
		Collection: c.name,
		Filters:    filters,
		OrderBy:    []Order{c.order(order)},
		Limit:      limit,
	})
}

// Count returns how many records match filters.
func (c *Collection[T]) Count(ctx context.Context, filters []Filter) (int, error) {
	return c.backend.Count(ctx, Query{Collection: c.name, Filters: filters})
}

// Page returns one page of the records matching filters.
func (c *Collection[T]) Page(ctx context.Context, filters []Filter, order core.OrderBy, p core.Pagination) (*core.Page[T], error) {
	docs, info, err := Paginate(ctx, c.backend, PageQuery{
		Collection: c.name,
		Filters:    filters,
		OrderBy:    core.OrderBy(c.order(order)),
		Pagination: p,
	})
	if err != nil {
		return nil, err
	}
	items, err := decodeAll[T](docs)
	if err != nil {
		return nil, err
	}
	return &core.Page[T]{Items: items, Pagination: info}, nil
}

// Set writes record under id, replacing any existing document, and returns
// the record as stored. An empty id asks the backend for a new one.
func (c *Collection[T]) Set(ctx context.Context, id string, record *T) (*T, string, error) {
	op, err := c.setOp(id, record)
	if err != nil {
		return nil, "", err
	}
	if err := c.backend.Commit(ctx, []WriteOp{op}); err != nil {
		return nil, "", err
	}
	stored, err := Decode[T](&Document{ID: op.ID, Data: op.Data})
	if err != nil {
		return nil, "", err
	}
	return stored, op.ID, nil
}

// Keyed pairs a record with the document id it is stored under.
// An empty ID asks the backend for a new one.
type Keyed[T any] struct {
	ID     string
	Record *T
}

// SetMany writes records in windows of MaxBatchSize. See BatchWrite for
// the partial-failure behavior.
func (c *Collection[T]) SetMany(ctx context.Context, records []Keyed[T]) error {
	ops := make([]WriteOp, 0, len(records))
	for _, r := range records {
		op, err := c.setOp(r.ID, r.Record)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	return c.commitAll(ctx, ops)
}

// Merge merges fields into the document with id, creating it if needed.
// updatedAt is stamped when T declares it.
func (c *Collection[T]) Merge(ctx context.Context, id string, fields map[string]any) error {
	return c.backend.Commit(ctx, []WriteOp{c.MergeOp(id, fields)})
}

// MergeOp builds the merge operation Merge would commit.
// A caller-supplied updatedAt is kept.
func (c *Collection[T]) MergeOp(id string, fields map[string]any) WriteOp {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	if _, ok := data[updatedAtField]; c.hasUpdatedAt && !ok {
		data[updatedAtField] = c.now()
	}
	return WriteOp{Kind: WriteMerge, Collection: c.name, ID: id, Data: data}
}

// Delete removes documents by id in windows of MaxBatchSize.
func (c *Collection[T]) Delete(ctx context.Context, ids ...string) error {
	return c.commitAll(ctx, DeleteOps(c.name, ids...))
}

// DeleteWhere resolves the ids of every document matching filters and then
// deletes them by reference. It returns how many documents were deleted.
func (c *Collection[T]) DeleteWhere(ctx context.Context, filters []Filter) (int, error) {
	docs, err := c.backend.Query(ctx, Query{Collection: c.name, Filters: filters})
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	if err := c.Delete(ctx, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CommitAll commits ops in windows of MaxBatchSize.
func (c *Collection[T]) CommitAll(ctx context.Context, ops []WriteOp) error {
	return c.commitAll(ctx, ops)
}

func (c *Collection[T]) commitAll(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if err := BatchWrite(ctx, c.backend, ops, MaxBatchSize); err != nil {
		c.logger.Error("batch write failed", "ops", len(ops), "err", err)
		return err
	}
	c.logger.Debug("batch write committed", "ops", len(ops))
	return nil
}

func (c *Collection[T]) setOp(id string, record *T) (WriteOp, error) {
	data, err := Encode(record)
	if err != nil {
		return WriteOp{}, err
	}
	if id == "" {
		id = c.backend.NewID(c.name)
	}
	if current, ok := data[idField]; ok && (current == nil || current == "") {
		data[idField] = id
	}
	now := c.now()
	if c.hasCreatedAt && data[createdAtField] == nil {
		data[createdAtField] = now
	}
	if c.hasUpdatedAt {
		data[updatedAtField] = now
	}
	return WriteOp{Kind: WriteSet, Collection: c.name, ID: id, Data: data}, nil
}

func (c *Collection[T]) order(order core.OrderBy) Order {
	if order.Field == "" {
		order.Field = c.defaultOrder.Field
		if order.Direction == "" {
			order.Direction = c.defaultOrder.Direction
		}
	}
	if order.Direction == "" {
		order.Direction = core.SortAsc
	}
	return Order{Field: order.Field, Direction: order.Direction}
}

func decodeAll[T any](docs []*Document) ([]*T, error) {
	records := make([]*T, 0, len(docs))
	for _, doc := range docs {
		record, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
