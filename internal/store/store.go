package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Store persists allocator snapshots in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	busyTimeout time.Duration
	logger      *slog.Logger
}

// WithBusyTimeout overrides DefaultBusyTimeout. Non-positive values are
// ignored.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *openConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithLogger sets the logger migrations are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *openConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// pragma is a connection setting and the value PRAGMA reports back once it
// is applied.
type pragma struct {
	name   string
	value  string
	readAs string
}

func pragmas(busyTimeout time.Duration) []pragma {
	ms := strconv.FormatInt(busyTimeout.Milliseconds(), 10)
	return []pragma{
		{name: "journal_mode", value: "WAL", readAs: "wal"},
		{name: "synchronous", value: "NORMAL", readAs: "1"},
		{name: "busy_timeout", value: ms, readAs: ms},
		{name: "foreign_keys", value: "ON", readAs: "1"},
	}
}

// migration upgrades a database whose user_version is below version.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "index snapshots by session and tick",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_snapshots_session_tick ON snapshots(session, tick)`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Open opens or creates the snapshot database at path. The schema is
// created and migrated on every open, so opening an existing database is
// safe. ":memory:" gives a private in-memory store.
//
// A single connection is kept open: SQLite allows one writer and an
// in-memory database lives only as long as its connection.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openConfig{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, logger: cfg.logger.With("db", path)}
	for _, p := range pragmas(cfg.busyTimeout) {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %s: %w", p.name, err)
		}
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates missing tables, then runs every migration newer than the
// stored user_version inside one transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		s.logger.Info("applied migration", "version", m.version, "name", m.name)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// checkPragmas reports the first pragma whose current value differs from
// what Open applied.
func (s *Store) checkPragmas(busyTimeout time.Duration) error {
	for _, p := range pragmas(busyTimeout) {
		var got string
		if err := s.db.QueryRow("PRAGMA " + p.name).Scan(&got); err != nil {
			return fmt.Errorf("query pragma %s: %w", p.name, err)
		}
		if got != p.readAs {
			return fmt.Errorf("pragma %s = %q, want %q", p.name, got, p.readAs)
		}
	}
	return nil
}
