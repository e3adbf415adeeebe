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

import "context"

// BatchWrite commits ops in sequential windows of at most maxBatchSize operations.
//
// Each window is atomic, but the call as a whole is not: when window k fails,
// windows before it stay applied and the returned *BatchError records how
// many operations were committed. A maxBatchSize outside (0, MaxBatchSize]
// is treated as MaxBatchSize.
func BatchWrite(ctx context.Context, backend Backend, ops []WriteOp, maxBatchSize int) error {
	if maxBatchSize <= 0 || maxBatchSize > MaxBatchSize {
		maxBatchSize = MaxBatchSize
	}

	for start := 0; start < len(ops); start += maxBatchSize {
		end := min(start+maxBatchSize, len(ops))
		if err := backend.Commit(ctx, ops[start:end]); err != nil {
			return &BatchError{
				Window:    start / maxBatchSize,
				Committed: start,
				Err:       err,
			}
		}
	}
	return nil
}

// DeleteOps builds delete operations for ids in collection.
func DeleteOps(collection string, ids ...string) []WriteOp {
	ops := make([]WriteOp, len(ids))
	for i, id := range ids {
		ops[i] = WriteOp{Kind: WriteDelete, Collection: collection, ID: id}
	}
	return ops
}

// chunk splits values into consecutive slices of at most size elements.
func chunk[E any](values []E, size int) [][]E {
	if len(values) == 0 {
		return nil
	}
	chunks := make([][]E, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		chunks = append(chunks, values[start:min(start+size, len(values))])
	}
	return chunks
}
