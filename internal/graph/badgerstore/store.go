// Package badgerstore persists prebuilt safety graphs in an embedded BadgerDB,
// keyed by extent name.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/graph"
)

// ErrNotFound is returned when no graph is stored for an extent.
var ErrNotFound = errors.New("graph artifact not found")

const (
	artifactPrefix = "graph/artifact/"
	metaPrefix     = "graph/meta/"
)

// Config holds configuration for the graph store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in memory only (tests).
	InMemory bool

	// SyncWrites makes every write durable before returning (default: false).
	SyncWrites bool

	// Logger receives BadgerDB's internal log output at warn level and above.
	Logger zerolog.Logger
}

// Meta describes a stored artifact without decoding it.
type Meta struct {
	Extent    string    `json:"extent"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	BuiltAt   time.Time `json:"builtAt"`
	StoredAt  time.Time `json:"storedAt"`
	SizeBytes int       `json:"sizeBytes"`
}

// Store is a BadgerDB-backed graph artifact store.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// badgerLogger adapts zerolog to BadgerDB's logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}

// Open opens or creates the store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent graph store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating graph store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening graph store: %w", err)
	}
	return &Store{db: db, logger: cfg.Logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes g under its extent, replacing any previous artifact.
func (s *Store) Save(ctx context.Context, g *graph.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.Extent == "" {
		return errors.New("graph extent is required")
	}
	data, err := graph.MarshalBinary(g)
	if err != nil {
		return err
	}
	meta := Meta{
		Extent:    g.Extent,
		Nodes:     g.NodeCount(),
		Edges:     g.EdgeCount(),
		BuiltAt:   g.BuiltAt,
		StoredAt:  time.Now().UTC(),
		SizeBytes: len(data),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding graph meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(artifactPrefix+g.Extent), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+g.Extent), metaJSON)
	})
	if err != nil {
		return fmt.Errorf("saving graph %s: %w", g.Extent, err)
	}

	s.logger.Info().
		Str("extent", g.Extent).
		Int("nodes", meta.Nodes).
		Int("edges", meta.Edges).
		Int("size_bytes", meta.SizeBytes).
		Msg("stored graph artifact")
	return nil
}

// Load reads and decodes the graph stored for extent.
func (s *Store) Load(ctx context.Context, extent string) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(artifactPrefix + extent))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, extent)
	}
	if err != nil {
		return nil, fmt.Errorf("reading graph %s: %w", extent, err)
	}
	return graph.UnmarshalBinary(data)
}

// Meta returns metadata for the graph stored under extent.
func (s *Store) Meta(ctx context.Context, extent string) (*Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + extent))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, extent)
	}
	if err != nil {
		return nil, fmt.Errorf("reading graph meta %s: %w", extent, err)
	}
	return &meta, nil
}

// List returns metadata for every stored extent.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(metaPrefix), PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var m Meta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}
	return out, nil
}

// Delete removes the artifact stored for extent.
func (s *Store) Delete(ctx context.Context, extent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(artifactPrefix + extent)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + extent))
	})
}
