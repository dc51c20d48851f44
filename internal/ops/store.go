package ops

import (
	"path/filepath"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/journal"
	"exchange/internal/store"
	"exchange/pkg/conn"
	"exchange/pkg/exception"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreDisk     = "disk"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// StoreConfig selects the journal and snapshot store.
type StoreConfig struct {
	Kind            string         `json:"kind"`
	Dir             string         `json:"dir"`
	NoSync          bool           `json:"noSync"`
	SegmentMaxBytes int64          `json:"segmentMaxBytes"`
	SQLitePath      string         `json:"sqlitePath"`
	Postgres        PostgresConfig `json:"postgres"`
}

// PostgresConfig describes a postgres connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

func (c StoreConfig) kind() string {
	if c.Kind == "" {
		return StoreMemory
	}
	return strings.ToLower(c.Kind)
}

// Validate checks if the configuration is usable.
func (c StoreConfig) Validate() error {
	switch c.kind() {
	case StoreMemory:
	case StoreDisk, StoreBadger:
		if c.Dir == "" {
			return errors.Wrapf(exception.ErrInvalidConfig, "store %s: dir is empty", c.kind())
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "store sqlite: sqlitePath is empty")
		}
	case StorePostgres:
		if c.Postgres.Database == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "store postgres: database is empty")
		}
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "unknown store kind: %s", c.Kind)
	}
	return nil
}

func (c StoreConfig) resolvePaths(base string) StoreConfig {
	if c.Dir != "" && !filepath.IsAbs(c.Dir) {
		c.Dir = filepath.Join(base, c.Dir)
	}
	if c.SQLitePath != "" && c.SQLitePath != ":memory:" && !filepath.IsAbs(c.SQLitePath) {
		c.SQLitePath = filepath.Join(base, c.SQLitePath)
	}
	return c
}

// Open creates the configured processor.
func (c StoreConfig) Open() (journal.Processor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		p   journal.Processor
		err error
	)
	switch c.kind() {
	case StoreMemory:
		p = journal.NewMemoryProcessor()
	case StoreDisk:
		p, err = store.NewDiskProcessor(store.DiskConfig{
			Dir:             c.Dir,
			SegmentMaxBytes: c.SegmentMaxBytes,
			NoSync:          c.NoSync,
		})
	case StoreBadger:
		p, err = store.NewBadgerProcessor(store.BadgerConfig{Dir: c.Dir, NoSync: c.NoSync})
	case StoreSQLite:
		p, err = store.NewGormProcessor(conn.Option{Driver: conn.DriverSQLite, Path: c.SQLitePath})
	case StorePostgres:
		p, err = store.NewGormProcessor(conn.Option{
			Driver:   conn.DriverPostgres,
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			Database: c.Postgres.Database,
			SSLMode:  c.Postgres.SSLMode,
		})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", c.kind())
	}
	logs.Infof("journal store opened, kind: %s", c.kind())
	return p, nil
}
