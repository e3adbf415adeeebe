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

package repository

import (
	"log/slog"

	"github.com/poiesic/agentstore/storage/badger"
)

// NewMemoryRepositories creates repositories over an in-memory badger backend for testing.
// Caller must close the backend when done.
func NewMemoryRepositories(opts ...Option) (*Repositories, *badger.Backend, error) {
	backend, err := badger.NewMemoryBackend()
	if err != nil {
		return nil, nil, err
	}
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return New(backend, opts...), backend, nil
}
