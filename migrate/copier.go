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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/agentstore/storage"
)

// Config holds configuration for a copy.
type Config struct {
	// PageSize is the number of documents read per query.
	PageSize int

	// BatchSize is the number of writes committed atomically.
	// Values above storage.MaxBatchSize are capped.
	BatchSize int

	// ReportInterval is how often to report progress (number of documents).
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each write window.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// SourcePrefix and TargetPrefix are prepended to collection names on
	// each side, so prefixed deployments can be copied into each other.
	SourcePrefix string
	TargetPrefix string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       DefaultPageSize,
		BatchSize:      storage.MaxBatchSize,
		ReportInterval: 500,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Result summarizes the copy of one collection.
type Result struct {
	Collection string
	Copied     int
	Elapsed    time.Duration
}

// Copier copies collections from one backend into another.
// Copied documents replace target documents with the same id.
type Copier struct {
	source   storage.Backend
	target   storage.Backend
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewCopier creates a new copier.
// progress: where to write progress output (typically os.Stderr)
func NewCopier(source, target storage.Backend, config *Config, progress io.Writer, logger *slog.Logger) *Copier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 || config.BatchSize > storage.MaxBatchSize {
		config.BatchSize = storage.MaxBatchSize
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = config.BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Copier{
		source:   source,
		target:   target,
		config:   config,
		progress: progress,
		logger:   logger,
	}
}

// Run copies every named collection in order and stops at the first failure.
// Results of the collections copied so far are returned with the error.
func (c *Copier) Run(ctx context.Context, collections ...string) ([]Result, error) {
	results := make([]Result, 0, len(collections))
	for _, name := range collections {
		result, err := c.Copy(ctx, name)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Copy copies one collection.
func (c *Copier) Copy(ctx context.Context, name string) (Result, error) {
	from := c.config.SourcePrefix + name
	to := c.config.TargetPrefix + name
	result := Result{Collection: name}
	if c.source == c.target && from == to {
		return result, fmt.Errorf("%w: %s", ErrSameCollection, from)
	}

	total, err := c.source.Count(ctx, storage.Query{Collection: from})
	if err != nil {
		return result, fmt.Errorf("failed to count %s: %w", from, err)
	}
	if total == 0 {
		fmt.Fprintf(c.progress, "%s: nothing to copy\n", name)
		return result, nil
	}

	c.logger.Info("copying collection", "from", from, "to", to, "documents", total)
	tracker := NewProgressTracker(c.progress, name, total, c.config.ReportInterval)
	tracker.Start()

	pending := make([]storage.WriteOp, 0, c.config.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ops := pending
		err := RetryWithBackoff(ctx, c.logger, func(ctx context.Context) error {
			return c.target.Commit(ctx, ops)
		}, c.config.MaxRetries, c.config.RetryDelay)
		if err != nil {
			return &storage.BatchError{Window: result.Copied / c.config.BatchSize, Committed: result.Copied, Err: err}
		}
		result.Copied += len(ops)
		tracker.Increment(len(ops))
		pending = make([]storage.WriteOp, 0, c.config.BatchSize)
		return nil
	}

	iterator := NewDocumentIterator(c.source, from, c.config.PageSize)
	err = iterator.ForEach(ctx, func(docs []*storage.Document) error {
		for _, doc := range docs {
			pending = append(pending, storage.WriteOp{
				Kind:       storage.WriteSet,
				Collection: to,
				ID:         doc.ID,
				Data:       doc.Data,
			})
			if len(pending) == c.config.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		c.logger.Error("copy failed", "collection", name, "copied", result.Copied, "err", err)
		return result, fmt.Errorf("failed to copy %s: %w", name, err)
	}

	tracker.Finish()
	c.logger.Info("collection copied", "collection", name, "copied", result.Copied, "elapsed", result.Elapsed)
	return result, nil
}
