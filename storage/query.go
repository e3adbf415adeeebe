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
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/core"
)

// DefaultOrderField is the ordering key used when a paginated query names none.
const DefaultOrderField = "createdAt"

// PageQuery is a filtered, ordered, offset-paginated query.
type PageQuery struct {
	Collection string
	Filters    []Filter
	OrderBy    core.OrderBy
	Pagination core.Pagination
}

// NormalizePagination applies defaults to a page request.
// Zero means unspecified; negative values are rejected with ErrInvalidQuery.
func NormalizePagination(p core.Pagination) (core.Pagination, error) {
	if p.Page < 0 || p.PerPage < 0 {
		return p, fmt.Errorf("%w: page %d, perPage %d", ErrInvalidQuery, p.Page, p.PerPage)
	}
	if p.Page == 0 {
		p.Page = core.DefaultPage
	}
	if p.PerPage == 0 {
		p.PerPage = core.DefaultPerPage
	}
	return p, nil
}

// Paginate runs a count query and a windowed fetch for pq.
//
// The total comes from a separate Count over the same filters, so under
// concurrent writes it may disagree with the page contents. Ordering defaults
// to DefaultOrderField descending.
func Paginate(ctx context.Context, backend Backend, pq PageQuery) ([]*Document, core.PaginationInfo, error) {
	p, err := NormalizePagination(pq.Pagination)
	if err != nil {
		return nil, core.PaginationInfo{}, err
	}

	order := pq.OrderBy
	if order.Field == "" {
		order.Field = DefaultOrderField
	}
	if order.Direction == "" {
		order.Direction = core.SortDesc
	}

	total, err := backend.Count(ctx, Query{Collection: pq.Collection, Filters: pq.Filters})
	if err != nil {
		return nil, core.PaginationInfo{}, err
	}

	info := core.NewPaginationInfo(p.Page, p.PerPage, total)
	if info.Offset() >= total {
		return nil, info, nil
	}

	docs, err := backend.Query(ctx, Query{
		Collection: pq.Collection,
		Filters:    pq.Filters,
		OrderBy:    []Order{{Field: order.Field, Direction: order.Direction}},
		Offset:     info.Offset(),
		Limit:      p.PerPage,
	})
	if err != nil {
		return nil, core.PaginationInfo{}, err
	}
	return docs, info, nil
}

// QueryIn runs q once per chunk of values with an extra "field in chunk" filter
// and concatenates the results. Chunks hold at most MaxInFilterValues values.
//
// Results are concatenated in chunk order, which is not a global order;
// callers re-sort when order matters. With a non-nil pool the chunks run concurrently.
func QueryIn(ctx context.Context, backend Backend, pool *ants.Pool, q Query, field string, values []any) ([]*Document, error) {
	chunks := chunk(values, MaxInFilterValues)
	results := make([][]*Document, len(chunks))

	err := runChunks(ctx, pool, len(chunks), func(ctx context.Context, i int) error {
		cq := q
		cq.Filters = append(append([]Filter(nil), q.Filters...), In(field, chunks[i]))
		docs, err := backend.Query(ctx, cq)
		if err != nil {
			return err
		}
		results[i] = docs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return concat(results), nil
}

// GetMany fetches documents by id in chunks of MaxGetAllIDs.
// Missing documents are skipped.
func GetMany(ctx context.Context, backend Backend, pool *ants.Pool, collection string, ids []string) ([]*Document, error) {
	chunks := chunk(ids, MaxGetAllIDs)
	results := make([][]*Document, len(chunks))

	err := runChunks(ctx, pool, len(chunks), func(ctx context.Context, i int) error {
		docs, err := backend.GetAll(ctx, collection, chunks[i])
		if err != nil {
			return err
		}
		results[i] = docs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return concat(results), nil
}

// runChunks calls fn for 0..n-1, on pool when one is given.
func runChunks(ctx context.Context, pool *ants.Pool, n int, fn func(ctx context.Context, i int) error) error {
	if pool == nil || n <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			errs[i] = fn(ctx, i)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

func concat(results [][]*Document) []*Document {
	var out []*Document
	for _, docs := range results {
		out = append(out, docs...)
	}
	return out
}
