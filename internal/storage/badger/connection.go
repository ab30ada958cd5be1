package badger

import (
	"fmt"
	"os"
	"path/filepath"

	badgerv4 "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/isabella232/stolos/internal/common"
)

// BadgerDB manages the Badger database connection backing the coordination
// store (spec.md §4.8). badgerhold fronts the ORM-style operations (state
// documents); the raw *badger.DB is exposed separately for
// the hierarchical-keyspace prefix scans badgerhold's Find/Where does not
// model (the "children of a znode path" operation: queue entries and locks).
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens (or creates) the Badger database at config.Path.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("deleting existing coordination store (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("failed to delete coordination store directory")
			}
		}
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create coordination store directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("opening coordination store")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // arbor handles logging instead of badger's own logger

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordination store: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("coordination store ready")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store returns the underlying badgerhold store.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Raw returns the underlying *badger.DB, for prefix-scan operations
// badgerhold does not support directly.
func (b *BadgerDB) Raw() *badgerv4.DB {
	return b.store.Badger()
}

// Close closes the database connection.
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
