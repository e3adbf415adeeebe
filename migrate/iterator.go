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

package migrate

import (
	"context"

	"github.com/poiesic/agentstore/storage"
)

// DefaultPageSize is the default number of documents read per query.
const DefaultPageSize = 300

// DocumentIterator reads every document of one collection in pages.
// Pages use the backend's natural document order, so the collection
// should not be written to while it is iterated.
type DocumentIterator struct {
	backend    storage.Backend
	collection string
	pageSize   int
}

// NewDocumentIterator creates an iterator over collection.
// A pageSize <= 0 uses DefaultPageSize.
func NewDocumentIterator(backend storage.Backend, collection string, pageSize int) *DocumentIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &DocumentIterator{
		backend:    backend,
		collection: collection,
		pageSize:   pageSize,
	}
}

// ForEach calls fn with each page until the collection is exhausted.
// Iteration stops on the first error from fn.
// Context cancellation is checked between pages.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*storage.Document) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, err := it.backend.Query(ctx, storage.Query{
			Collection: it.collection,
			Offset:     offset,
			Limit:      it.pageSize,
		})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		if err := fn(docs); err != nil {
			return err
		}
		if len(docs) < it.pageSize {
			return nil
		}
		offset += len(docs)
	}
}
