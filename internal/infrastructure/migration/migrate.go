package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// DefaultDir is where the ledger schema migrations live, relative to the repository root
const DefaultDir = "migrations"

// Migrator applies the ledger schema migrations with golang-migrate
type Migrator struct {
	m   *migrate.Migrate
	dir string
	log *zap.Logger
}

// Status is the schema version as recorded in schema_migrations
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

// New creates a Migrator on an open PostgreSQL connection
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL(dir), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", dir, err)
	}
	return &Migrator{m: m, dir: dir, log: log}, nil
}

// NewFromURL creates a Migrator from a database URL such as postgres://...
func NewFromURL(databaseURL, dir string, log *zap.Logger) (*Migrator, error) {
	m, err := migrate.New(sourceURL(dir), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", dir, err)
	}
	return &Migrator{m: m, dir: dir, log: log}, nil
}

func sourceURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}

// ResolveDir finds the migrations directory. An explicit path wins; otherwise
// ./migrations and then <executable>/../../migrations are tried.
func ResolveDir(explicit string) (string, error) {
	candidates := []string{explicit}
	if explicit == "" {
		candidates = []string{DefaultDir}
		if exe, err := os.Executable(); err == nil {
			candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", "..", DefaultDir))
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return filepath.Abs(c)
		}
	}
	return "", fmt.Errorf("migrations directory not found (tried %v)", candidates)
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	m.log.Info("Applying pending migrations", zap.String("dir", m.dir))
	return m.run("up", m.m.Up)
}

// Down reverts every applied migration
func (m *Migrator) Down() error {
	m.log.Warn("Reverting all migrations", zap.String("dir", m.dir))
	return m.run("down", m.m.Down)
}

// Steps moves n migrations forward (n > 0) or backward (n < 0)
func (m *Migrator) Steps(n int) error {
	m.log.Info("Stepping migrations", zap.Int("steps", n))
	return m.run("step", func() error { return m.m.Steps(n) })
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	m.log.Info("Migrating to version", zap.Uint("target", version))
	return m.run("goto", func() error { return m.m.Migrate(version) })
}

// run executes a migration action, treating "no change" as success, and logs the resulting version
func (m *Migrator) run(action string, fn func() error) error {
	if err := fn(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("Schema already up to date", zap.String("action", action))
			return nil
		}
		return fmt.Errorf("migration %s failed: %w", action, err)
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	m.log.Info("Migration finished",
		zap.String("action", action),
		zap.Uint("version", status.Version),
		zap.Bool("dirty", status.Dirty),
	)
	return nil
}

// Status reports the current schema version. Applied is false on an empty database.
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

// Version returns the current version and dirty flag, 0 when nothing was applied
func (m *Migrator) Version() (uint, bool, error) {
	s, err := m.Status()
	return s.Version, s.Dirty, err
}

// Force records version as applied and clears the dirty flag without running SQL.
// Used to recover from a migration that failed halfway.
func (m *Migrator) Force(version int) error {
	m.log.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database, including tables owned by other modules
func (m *Migrator) Drop() error {
	m.log.Warn("Dropping all database objects")
	if err := m.m.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.m.Close()
	return errors.Join(sourceErr, dbErr)
}
