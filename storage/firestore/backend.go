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

// Package firestore implements storage.Backend on Google Cloud Firestore.
//
// Filters, ordering and count aggregation run server-side. Commits run in a
// transaction so each batch of writes lands atomically. Composite queries
// (an equality filter combined with ordering on another field) need the
// matching composite index to exist in the project.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	gcfirestore "cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/storage"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EmulatorHostEnv is read by the Firestore client to target a local emulator.
const EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

const countAlias = "all"

// Config selects the Firestore project and database.
type Config struct {
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	EmulatorHost    string
}

// Backend stores documents in Firestore.
type Backend struct {
	client *gcfirestore.Client
	logger *slog.Logger
	closed atomic.Bool
}

var _ storage.Backend = (*Backend)(nil)

// OpenBackend connects to Firestore. Extra client options are passed through
// to the Google API client.
func OpenBackend(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	if cfg.EmulatorHost != "" {
		if err := os.Setenv(EmulatorHostEnv, cfg.EmulatorHost); err != nil {
			return nil, err
		}
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = gcfirestore.DefaultDatabaseID
	}

	client, err := gcfirestore.NewClientWithDatabase(ctx, cfg.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	logger.Debug("firestore backend opened", "project", cfg.ProjectID, "database", databaseID)
	return &Backend{client: client, logger: logger}, nil
}

// Close releases the Firestore client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

// IsClosed returns true once Close has been called.
func (b *Backend) IsClosed() bool {
	return b.closed.Load()
}

// NewID returns a Firestore auto-generated id.
func (b *Backend) NewID(collection string) string {
	return b.client.Collection(collection).NewDoc().ID
}

// Get returns a single document.
func (b *Backend) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	if b.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	snap, err := b.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, &storage.NotFoundError{Kind: collection, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return toDocument(snap), nil
}

// GetAll returns the documents that exist among ids.
func (b *Backend) GetAll(ctx context.Context, collection string, ids []string) ([]*storage.Document, error) {
	if len(ids) > storage.MaxGetAllIDs {
		return nil, fmt.Errorf("%w: %d ids requested, limit is %d", storage.ErrTooManyValues, len(ids), storage.MaxGetAllIDs)
	}
	if b.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if len(ids) == 0 {
		return []*storage.Document{}, nil
	}

	coll := b.client.Collection(collection)
	refs := make([]*gcfirestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = coll.Doc(id)
	}
	snaps, err := b.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to get %d documents from %s: %w", len(ids), collection, err)
	}

	docs := make([]*storage.Document, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Exists() {
			docs = append(docs, toDocument(snap))
		}
	}
	return docs, nil
}

// Query returns the documents matching q.
func (b *Backend) Query(ctx context.Context, q storage.Query) ([]*storage.Document, error) {
	if b.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	query, err := b.buildQuery(q)
	if err != nil {
		return nil, err
	}
	for _, o := range q.OrderBy {
		query = query.OrderBy(o.Field, direction(o.Direction))
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	docs := make([]*storage.Document, len(snaps))
	for i, snap := range snaps {
		docs[i] = toDocument(snap)
	}
	return docs, nil
}

// Count runs a count aggregation over the filters of q.
func (b *Backend) Count(ctx context.Context, q storage.Query) (int, error) {
	if b.closed.Load() {
		return 0, storage.ErrStorageClosed
	}
	query, err := b.buildQuery(q)
	if err != nil {
		return 0, err
	}

	result, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Collection, err)
	}
	value, ok := result[countAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result type %T", result[countAlias])
	}
	return int(value.GetIntegerValue()), nil
}

// Commit applies ops in one transaction.
func (b *Backend) Commit(ctx context.Context, ops []storage.WriteOp) error {
	if len(ops) > storage.MaxBatchSize {
		return fmt.Errorf("%w: %d writes in one commit, limit is %d", storage.ErrTooManyValues, len(ops), storage.MaxBatchSize)
	}
	if len(ops) == 0 {
		return nil
	}
	if b.closed.Load() {
		return storage.ErrStorageClosed
	}

	return b.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		for _, op := range ops {
			if op.ID == "" {
				return fmt.Errorf("%w: write to %s without a document id", storage.ErrInvalidQuery, op.Collection)
			}
			ref := b.client.Collection(op.Collection).Doc(op.ID)
			data := op.Data
			if data == nil {
				data = map[string]any{}
			}

			var err error
			switch op.Kind {
			case storage.WriteSet:
				err = tx.Set(ref, data)
			case storage.WriteMerge:
				nested, paths := mergeFields(data)
				if len(paths) == 0 {
					err = tx.Set(ref, nested, gcfirestore.MergeAll)
				} else {
					err = tx.Set(ref, nested, gcfirestore.Merge(paths...))
				}
			case storage.WriteDelete:
				err = tx.Delete(ref)
			default:
				err = fmt.Errorf("unknown write kind %d", op.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) buildQuery(q storage.Query) (gcfirestore.Query, error) {
	if q.Collection == "" {
		return gcfirestore.Query{}, fmt.Errorf("%w: collection is required", storage.ErrInvalidQuery)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return gcfirestore.Query{}, fmt.Errorf("%w: negative offset or limit", storage.ErrInvalidQuery)
	}

	query := b.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		if f.Op == storage.OpIn {
			values, ok := f.Value.([]any)
			if !ok {
				return gcfirestore.Query{}, fmt.Errorf("%w: in filter on %s needs []any", storage.ErrInvalidQuery, f.Field)
			}
			if len(values) > storage.MaxInFilterValues {
				return gcfirestore.Query{}, fmt.Errorf("%w: in filter on %s has %d values, limit is %d",
					storage.ErrTooManyValues, f.Field, len(values), storage.MaxInFilterValues)
			}
		}
		query = query.Where(f.Field, string(f.Op), f.Value)
	}
	return query, nil
}

// mergeFields expands dotted keys into the nested map and field paths that
// Set with Merge expects.
func mergeFields(fields map[string]any) (map[string]any, []gcfirestore.FieldPath) {
	nested := map[string]any{}
	paths := make([]gcfirestore.FieldPath, 0, len(fields))
	for key, value := range fields {
		path := strings.Split(key, ".")
		paths = append(paths, path)

		m := nested
		for _, part := range path[:len(path)-1] {
			child, ok := m[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[part] = child
			}
			m = child
		}
		m[path[len(path)-1]] = value
	}
	return nested, paths
}

func direction(d core.SortDirection) gcfirestore.Direction {
	if d == core.SortDesc {
		return gcfirestore.Desc
	}
	return gcfirestore.Asc
}

func toDocument(snap *gcfirestore.DocumentSnapshot) *storage.Document {
	return &storage.Document{
		ID:         snap.Ref.ID,
		Data:       snap.Data(),
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}
}
