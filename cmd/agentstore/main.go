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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/agentstore"
	"github.com/poiesic/agentstore/core"
	"github.com/poiesic/agentstore/migrate"
	"github.com/poiesic/agentstore/repository"
	"github.com/poiesic/agentstore/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "agentstore",
		Usage:     "Inspect and maintain agent storage",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"AGENTSTORE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to a badger database directory (overrides the config backend)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Collection name prefix (overrides the config)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Count the documents of every collection",
				Action: statsCommand,
			},
			{
				Name:   "threads",
				Usage:  "List the threads of a resource",
				Action: threadsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "resource",
						Aliases:  []string{"r"},
						Usage:    "Resource id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number, starting at 1",
						Value: core.DefaultPage,
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "Threads per page",
						Value: core.DefaultPerPage,
					},
				},
			},
			{
				Name:   "messages",
				Usage:  "Print the messages of a thread",
				Action: messagesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "thread",
						Aliases:  []string{"t"},
						Usage:    "Thread id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "last",
						Usage: "Only print the most recent N messages (0 prints all)",
					},
				},
			},
			{
				Name:   "runs",
				Usage:  "List workflow runs",
				Action: runsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "workflow",
						Aliases: []string{"w"},
						Usage:   "Workflow name",
					},
					&cli.StringFlag{
						Name:  "resource",
						Usage: "Resource id",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs (0 lists all)",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of runs to skip",
					},
				},
			},
			{
				Name:   "run",
				Usage:  "Print one workflow run",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run id",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "workflow",
						Aliases: []string{"w"},
						Usage:   "Workflow name (any workflow when empty)",
					},
				},
			},
			{
				Name:   "delete-thread",
				Usage:  "Delete a thread and all of its messages",
				Action: deleteThreadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Thread id",
						Required: true,
					},
				},
			},
			{
				Name:   "clear-table",
				Usage:  "Delete every record of a table",
				Action: clearTableCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Usage:    "Table (collection) name",
						Required: true,
					},
				},
			},
			{
				Name:   "copy",
				Usage:  "Copy every collection into the backend of another config",
				Action: copyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Path to the target YAML config file",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "collection",
						Usage: "Collection to copy (repeatable, defaults to all)",
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Number of documents read per query",
						Value: migrate.DefaultPageSize,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents written per atomic batch",
						Value: storage.MaxBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 500,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "write-config",
				Usage:  "Write the effective configuration as YAML",
				Action: writeConfigCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output file",
						Required: true,
					},
				},
			},
		},
	}
}

// loadConfig reads --config and applies the --db and --prefix overrides.
func loadConfig(c *cli.Context) (*agentstore.Config, error) {
	cfg, err := agentstore.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if path := c.String("db"); path != "" {
		agentstore.WithBadgerPath(path)(cfg)
	}
	if c.IsSet("prefix") {
		cfg.CollectionPrefix = c.String("prefix")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withDatabase(c *cli.Context, fn func(ctx context.Context, cfg *agentstore.Config, db *agentstore.Database) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := agentstore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}

func statsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, cfg *agentstore.Config, db *agentstore.Database) error {
		counts := make(map[string]int, len(repository.Collections))
		for _, name := range repository.Collections {
			n, err := db.Backend().Count(ctx, storage.Query{Collection: cfg.CollectionPrefix + name})
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", name, err)
			}
			counts[name] = n
		}
		return printJSON(c.App.Writer, counts)
	})
}

func threadsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		page, err := db.Threads().GetThreadsByResourceIDPaginated(ctx, core.ThreadsQuery{
			ResourceID: c.String("resource"),
			Pagination: core.Pagination{Page: c.Int("page"), PerPage: c.Int("per-page")},
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, map[string]any{
			"threads":    page.Items,
			"pagination": page.Pagination,
		})
	})
}

func messagesCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		messages, err := db.Messages().GetMessages(ctx, core.MessagesQuery{
			ThreadID: c.String("thread"),
			SelectBy: core.MessageSelect{Last: c.Int("last")},
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, messages)
	})
}

func runsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		runs, err := db.Workflows().GetWorkflowRuns(ctx, core.WorkflowRunsQuery{
			WorkflowName: c.String("workflow"),
			ResourceID:   c.String("resource"),
			Limit:        c.Int("limit"),
			Offset:       c.Int("offset"),
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, runs)
	})
}

func runCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		run, err := db.Workflows().GetWorkflowRunByID(ctx, c.String("id"), c.String("workflow"))
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("workflow run %q not found", c.String("id"))
		}
		return printJSON(c.App.Writer, run)
	})
}

func deleteThreadCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		id := c.String("id")
		if err := db.Threads().DeleteThread(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Deleted thread %s\n", id)
		return nil
	})
}

func clearTableCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, _ *agentstore.Config, db *agentstore.Database) error {
		table := c.String("table")
		if err := db.Tables().ClearTable(ctx, table); err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Cleared table %s\n", table)
		return nil
	})
}

func copyCommand(c *cli.Context) error {
	target, err := agentstore.LoadConfig(c.String("to"))
	if err != nil {
		return fmt.Errorf("failed to load target config: %w", err)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid target config: %w", err)
	}

	copyConfig := &migrate.Config{
		PageSize:       c.Int("page-size"),
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		TargetPrefix:   target.CollectionPrefix,
	}
	if copyConfig.BatchSize <= 0 || copyConfig.BatchSize > storage.MaxBatchSize {
		return fmt.Errorf("batch-size must be between 1 and %d", storage.MaxBatchSize)
	}
	if copyConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	collections := c.StringSlice("collection")
	if len(collections) == 0 {
		collections = repository.Collections
	}

	return withDatabase(c, func(ctx context.Context, cfg *agentstore.Config, source *agentstore.Database) error {
		copyConfig.SourcePrefix = cfg.CollectionPrefix

		dest, err := agentstore.Open(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to open target database: %w", err)
		}
		defer dest.Close()

		fmt.Fprintf(c.App.ErrWriter, "Source: %s\n", describe(cfg))
		fmt.Fprintf(c.App.ErrWriter, "Target: %s\n", describe(target))
		fmt.Fprintln(c.App.ErrWriter)

		copier := migrate.NewCopier(source.Backend(), dest.Backend(), copyConfig, c.App.ErrWriter, slog.Default())
		results, err := copier.Run(ctx, collections...)
		total := 0
		for _, r := range results {
			total += r.Copied
		}
		fmt.Fprintf(c.App.ErrWriter, "Copied %d documents from %d collections\n", total, len(results))
		if err != nil {
			return fmt.Errorf("copy failed: %w", err)
		}
		return nil
	})
}

func writeConfigCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return cfg.Save(c.String("out"))
}

func describe(cfg *agentstore.Config) string {
	switch {
	case cfg.Backend == agentstore.BackendFirestore:
		return fmt.Sprintf("firestore project=%s database=%s prefix=%q", cfg.Firestore.ProjectID, cfg.Firestore.DatabaseID, cfg.CollectionPrefix)
	case cfg.Badger.InMemory:
		return fmt.Sprintf("badger (in memory) prefix=%q", cfg.CollectionPrefix)
	}
	return fmt.Sprintf("badger path=%s prefix=%q", cfg.Badger.Path, cfg.CollectionPrefix)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	errWriter := c.App.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(errWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
