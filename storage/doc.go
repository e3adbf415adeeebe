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


// Package storage provides the document-store abstraction layer for agentstore.
//
// The package has two halves. The lower half is the Backend interface: a
// document store addressed by collection and id that can get, batch-get,
// query with equality and range filters, count, and commit up to
// MaxBatchSize writes atomically. Drivers live in sub-packages:
//
//	backend, err := badger.OpenBackend(path, false)          // embedded BadgerDB
//	backend, err := firestore.OpenBackend(ctx, cfg, logger)  // Google Cloud Firestore
//
// The upper half is written once against Backend and shared by every record kind:
//
//   - Encode / Decode: record <-> document conversion with timestamp normalization
//   - BatchWrite: sequential windows of at most MaxBatchSize atomic writes
//   - Paginate: count query plus an ordered offset/limit window
//   - QueryIn / GetMany: "in" filters and id lookups split into chunks of 10
//   - Collection[T]: typed get, list, page, upsert, merge and delete
//
// The repository interfaces (ThreadRepository, MessageRepository, ...) describe
// the persistence contract the repository package implements on top of Collection.
//
// # Consistency
//
// Totals returned by Paginate come from a second round trip and may disagree
// with the page contents under concurrent writes. Batch writes are atomic per
// window only; see BatchError. Read-modify-write updates in the repositories
// carry no concurrency control and the last writer wins.
//
// # Thread Safety
//
// Backends must be safe for concurrent use. A single Backend handle is shared
// by all repositories and owned by whoever opened it.
//
// # Context Support
//
// All backend methods accept context.Context; deadlines and cancellation are
// enforced by the backend client and surface as ordinary errors.
package storage
