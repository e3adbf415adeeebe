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

package agentstore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendBadger    = "badger"
	BackendFirestore = "firestore"
)

// Config selects and configures the document backend.
type Config struct {
	// Backend is either "badger" or "firestore".
	// Default: "badger"
	Backend string `yaml:"backend"`

	Badger    BadgerConfig    `yaml:"badger"`
	Firestore FirestoreConfig `yaml:"firestore"`

	// CollectionPrefix is prepended to every collection name.
	CollectionPrefix string `yaml:"collection_prefix"`

	// QueryPoolSize bounds how many chunked "in" queries run at once.
	// Zero runs them sequentially.
	// Default: 4
	QueryPoolSize int `yaml:"query_pool_size"`
}

// BadgerConfig configures the embedded backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// FirestoreConfig configures the Firestore backend.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatabaseID      string `yaml:"database_id"`
	CredentialsFile string `yaml:"credentials_file"`
	// EmulatorHost points the client at a local emulator, e.g. "localhost:8080".
	EmulatorHost string `yaml:"emulator_host"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend sets the backend name.
func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithBadgerPath selects the badger backend stored at path.
func WithBadgerPath(path string) ConfigOption {
	return func(c *Config) {
		c.Backend = BackendBadger
		c.Badger.Path = path
		c.Badger.InMemory = false
	}
}

// WithInMemory selects an in-memory badger backend.
func WithInMemory() ConfigOption {
	return func(c *Config) {
		c.Backend = BackendBadger
		c.Badger.InMemory = true
	}
}

// WithFirestore selects the Firestore backend for projectID.
func WithFirestore(projectID string) ConfigOption {
	return func(c *Config) {
		c.Backend = BackendFirestore
		c.Firestore.ProjectID = projectID
	}
}

// WithFirestoreDatabase sets a named Firestore database.
func WithFirestoreDatabase(databaseID string) ConfigOption {
	return func(c *Config) {
		c.Firestore.DatabaseID = databaseID
	}
}

// WithCredentialsFile sets the service account key used for Firestore.
func WithCredentialsFile(path string) ConfigOption {
	return func(c *Config) {
		c.Firestore.CredentialsFile = path
	}
}

// WithEmulatorHost points Firestore at a local emulator.
func WithEmulatorHost(host string) ConfigOption {
	return func(c *Config) {
		c.Firestore.EmulatorHost = host
	}
}

// WithCollectionPrefix sets the collection name prefix.
func WithCollectionPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.CollectionPrefix = prefix
	}
}

// WithQueryPoolSize sets the number of concurrent chunked queries.
func WithQueryPoolSize(size int) ConfigOption {
	return func(c *Config) {
		c.QueryPoolSize = size
	}
}

// DefaultConfig returns a Config for a local badger store in ./agentstore-data.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendBadger,
		Badger: BadgerConfig{
			Path: "agentstore-data",
		},
		QueryPoolSize: 4,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithFirestore("my-project"),
//	    WithCollectionPrefix("staging_"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LoadConfig reads a YAML config file over the defaults and then applies
// AGENTSTORE_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AGENTSTORE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("AGENTSTORE_BADGER_PATH"); v != "" {
		c.Badger.Path = v
	}
	if v := os.Getenv("AGENTSTORE_BADGER_IN_MEMORY"); v != "" {
		inMemory, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: AGENTSTORE_BADGER_IN_MEMORY: %w", ErrInvalidConfig, err)
		}
		c.Badger.InMemory = inMemory
	}
	if v := os.Getenv("AGENTSTORE_FIRESTORE_PROJECT"); v != "" {
		c.Firestore.ProjectID = v
	}
	if v := os.Getenv("AGENTSTORE_FIRESTORE_DATABASE"); v != "" {
		c.Firestore.DatabaseID = v
	}
	if v := os.Getenv("AGENTSTORE_FIRESTORE_CREDENTIALS"); v != "" {
		c.Firestore.CredentialsFile = v
	}
	if v := os.Getenv("AGENTSTORE_FIRESTORE_EMULATOR_HOST"); v != "" {
		c.Firestore.EmulatorHost = v
	}
	if v := os.Getenv("AGENTSTORE_COLLECTION_PREFIX"); v != "" {
		c.CollectionPrefix = v
	}
	if v := os.Getenv("AGENTSTORE_QUERY_POOL_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AGENTSTORE_QUERY_POOL_SIZE: %w", ErrInvalidConfig, err)
		}
		c.QueryPoolSize = size
	}
	return nil
}

// Normalize ensures the configuration is in a canonical form.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendBadger:
		if !c.Badger.InMemory && c.Badger.Path == "" {
			return fmt.Errorf("%w: badger path is required", ErrInvalidConfig)
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("%w: firestore project id is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.QueryPoolSize < 0 {
		return fmt.Errorf("%w: query pool size must not be negative", ErrInvalidConfig)
	}
	return nil
}
