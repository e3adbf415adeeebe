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

// Package agentstore persists agent framework records (threads, messages,
// resources, workflow snapshots, traces, AI spans, scores, evaluations and
// generic tables) in a document database.
//
// A Database opens the configured backend once and shares it across every
// repository:
//
//	db, err := agentstore.Open(ctx, agentstore.NewConfig(agentstore.WithInMemory()))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	thread, err := db.Threads().SaveThread(ctx, &core.Thread{ID: "t1", ResourceID: "user-1"})
package agentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/agentstore/repository"
	"github.com/poiesic/agentstore/storage"
	"github.com/poiesic/agentstore/storage/badger"
	"github.com/poiesic/agentstore/storage/firestore"
)

// Database owns a backend handle, the query worker pool and the repositories built on them.
type Database struct {
	backend storage.Backend
	pool    *ants.Pool
	repos   *repository.Repositories
	logger  *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger  *slog.Logger
	backend storage.Backend
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStorageBackend uses an already opened backend instead of the configured one.
// The Database takes ownership and closes it.
func WithStorageBackend(backend storage.Backend) DatabaseOption {
	return func(o *databaseOptions) {
		o.backend = backend
	}
}

// Open validates cfg, opens its backend and builds the repositories.
func Open(ctx context.Context, cfg *Config, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := options.backend
	if backend == nil {
		var err error
		backend, err = openBackend(ctx, cfg, options.logger)
		if err != nil {
			return nil, err
		}
	}

	var pool *ants.Pool
	if cfg.QueryPoolSize > 0 {
		var err error
		pool, err = ants.NewPool(cfg.QueryPoolSize)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create query pool: %w", err)
		}
	}

	repos := repository.New(backend,
		repository.WithCollectionPrefix(cfg.CollectionPrefix),
		repository.WithPool(pool),
		repository.WithLogger(options.logger),
	)

	options.logger.Info("database opened", "backend", cfg.Backend, "prefix", cfg.CollectionPrefix)
	return &Database{
		backend: backend,
		pool:    pool,
		repos:   repos,
		logger:  options.logger,
	}, nil
}

func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case BackendBadger:
		backend, err := badger.OpenBackendWithLogger(cfg.Badger.Path, cfg.Badger.InMemory, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger backend: %w", err)
		}
		return backend, nil
	case BackendFirestore:
		backend, err := firestore.OpenBackend(ctx, firestore.Config{
			ProjectID:       cfg.Firestore.ProjectID,
			DatabaseID:      cfg.Firestore.DatabaseID,
			CredentialsFile: cfg.Firestore.CredentialsFile,
			EmulatorHost:    cfg.Firestore.EmulatorHost,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore backend: %w", err)
		}
		return backend, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// Close releases the query pool and then the backend.
func (db *Database) Close() error {
	if db.pool != nil {
		db.pool.Release()
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	db.logger.Info("database closed")
	return nil
}

// Backend returns the shared backend handle.
func (db *Database) Backend() storage.Backend {
	return db.backend
}

// Repositories returns the repository bundle.
func (db *Database) Repositories() *repository.Repositories {
	return db.repos
}

func (db *Database) Threads() storage.ThreadRepository {
	return db.repos.Threads
}

func (db *Database) Messages() storage.MessageRepository {
	return db.repos.Messages
}

func (db *Database) Resources() storage.ResourceRepository {
	return db.repos.Resources
}

func (db *Database) Scores() storage.ScoreRepository {
	return db.repos.Scores
}

func (db *Database) Traces() storage.TraceRepository {
	return db.repos.Traces
}

func (db *Database) Workflows() storage.WorkflowRepository {
	return db.repos.Workflows
}

func (db *Database) Evals() storage.EvalRepository {
	return db.repos.Evals
}

func (db *Database) Spans() storage.SpanRepository {
	return db.repos.Spans
}

func (db *Database) Tables() storage.TableRepository {
	return db.repos.Tables
}

// IsNotFound reports whether err is a hard not-found from an update.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
