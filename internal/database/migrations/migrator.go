package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// advisory lock key shared by every migrator instance of this service
const lockID = 7215031337

type Migrator struct {
	pool           *pgxpool.Pool
	logger         *slog.Logger
	migrationsPath string
	lockTimeout    time.Duration
}

type Migration struct {
	Version      int64
	Name         string
	UpSQL        string
	DownSQL      string
	UpFilePath   string
	DownFilePath string
}

type MigrationRecord struct {
	Version   int64
	Dirty     bool
	AppliedAt time.Time
}

type MigrationStatus struct {
	Current int64
	Latest  int64
	Pending []Migration
	Applied []MigrationRecord
	IsDirty bool
}

func NewMigrator(logger *slog.Logger, pool *pgxpool.Pool) *Migrator {
	return &Migrator{
		pool:           pool,
		logger:         logger.With("component", "migrator"),
		migrationsPath: "internal/database/migrations/versions",
		lockTimeout:    5 * time.Minute,
	}
}

func (m *Migrator) SetMigrationsPath(path string) {
	m.migrationsPath = path
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			dirty BOOLEAN NOT NULL DEFAULT FALSE,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := m.pool.Exec(ctx, query)
	return err
}

// acquireLock takes the advisory lock so two processes never migrate
// concurrently.
func (m *Migrator) acquireLock(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	var acquired bool
	err := m.pool.QueryRow(lockCtx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("migration lock is held by another process (timeout: %v)", m.lockTimeout)
	}

	m.logger.Info("acquired migration lock")
	return nil
}

func (m *Migrator) releaseLock(ctx context.Context) error {
	var released bool
	err := m.pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", lockID).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	if !released {
		m.logger.Warn("migration lock was not held when releasing")
	}
	return nil
}

// Up runs pending migrations in version order. steps <= 0 runs all of them.
func (m *Migrator) Up(ctx context.Context, steps int) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration table: %w", err)
	}
	if err := m.acquireLock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.releaseLock(ctx); err != nil {
			m.logger.Error("failed to release migration lock", "error", err)
		}
	}()

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	appliedVersions, err := m.getAppliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied versions: %w", err)
	}

	pending := []Migration{}
	for _, migration := range migrations {
		if !containsVersion(appliedVersions, migration.Version) {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		m.logger.Info("no pending migrations")
		return nil
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	if steps > 0 && steps < len(pending) {
		pending = pending[:steps]
	}

	start := time.Now()
	for i, migration := range pending {
		m.logger.Info("applying migration",
			"progress", fmt.Sprintf("%d/%d", i+1, len(pending)),
			"version", migration.Version, "name", migration.Name)

		if err := m.applyMigration(ctx, migration, true); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	m.logger.Info("migrations applied", "count", len(pending), "elapsed", time.Since(start))
	return nil
}

// Down rolls back the given number of most recent migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration table: %w", err)
	}
	if err := m.acquireLock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.releaseLock(ctx); err != nil {
			m.logger.Error("failed to release migration lock", "error", err)
		}
	}()

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	appliedVersions, err := m.getAppliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied versions: %w", err)
	}
	if len(appliedVersions) == 0 {
		m.logger.Info("no migrations to roll back")
		return nil
	}

	sort.Slice(appliedVersions, func(i, j int) bool { return appliedVersions[i] > appliedVersions[j] })
	if steps > len(appliedVersions) {
		steps = len(appliedVersions)
	}

	for _, version := range appliedVersions[:steps] {
		migration := findMigrationByVersion(migrations, version)
		if migration == nil {
			return fmt.Errorf("migration file for version %d not found", version)
		}
		if err := m.applyMigration(ctx, *migration, false); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", version, err)
		}
		m.logger.Info("rolled back migration", "version", migration.Version, "name", migration.Name)
	}
	return nil
}

// Version returns the current migration version and dirty state.
func (m *Migrator) Version(ctx context.Context) (int64, bool, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, false, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	var (
		version int64
		dirty   bool
	)
	err := m.pool.QueryRow(ctx,
		"SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1").
		Scan(&version, &dirty)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return 0, false, nil
		}
		return 0, false, err
	}
	return version, dirty, nil
}

// Status reports applied, pending and dirty state in one struct.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	appliedRecords, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedVersions := make(map[int64]bool)
	var (
		isDirty bool
		current int64
	)
	for _, record := range appliedRecords {
		appliedVersions[record.Version] = true
		if record.Dirty {
			isDirty = true
		}
		if record.Version > current {
			current = record.Version
		}
	}

	var (
		pending []Migration
		latest  int64
	)
	for _, migration := range migrations {
		if migration.Version > latest {
			latest = migration.Version
		}
		if !appliedVersions[migration.Version] {
			pending = append(pending, migration)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	return &MigrationStatus{
		Current: current,
		Latest:  latest,
		Pending: pending,
		Applied: appliedRecords,
		IsDirty: isDirty,
	}, nil
}

// CreateMigration writes an empty .up.sql/.down.sql pair with a timestamp
// version.
func (m *Migrator) CreateMigration(name string) error {
	timestamp := time.Now().Format("20060102150405")
	cleanName := strings.ToLower(strings.ReplaceAll(name, " ", "_"))

	if err := os.MkdirAll(m.migrationsPath, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	base := filepath.Join(m.migrationsPath, fmt.Sprintf("%s_%s", timestamp, cleanName))
	header := fmt.Sprintf("-- Migration: %s\n-- Version: %s\n\n", name, timestamp)

	if err := os.WriteFile(base+".up.sql", []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to create up migration file: %w", err)
	}
	if err := os.WriteFile(base+".down.sql", []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to create down migration file: %w", err)
	}

	m.logger.Info("created migration files", "up", base+".up.sql", "down", base+".down.sql")
	return nil
}

// ValidateMigrations checks the migration files for duplicate versions and
// empty SQL.
func (m *Migrator) ValidateMigrations() error {
	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var issues []string
	versionMap := make(map[int64]bool)
	for _, migration := range migrations {
		if versionMap[migration.Version] {
			issues = append(issues, fmt.Sprintf("duplicate version: %d", migration.Version))
		}
		versionMap[migration.Version] = true

		if strings.TrimSpace(migration.UpSQL) == "" {
			issues = append(issues, fmt.Sprintf("version %d: empty up SQL", migration.Version))
		}
		if strings.TrimSpace(migration.DownSQL) == "" {
			issues = append(issues, fmt.Sprintf("version %d: empty down SQL", migration.Version))
		}
	}

	if len(issues) > 0 {
		for _, issue := range issues {
			m.logger.Error("migration validation issue", "issue", issue)
		}
		return fmt.Errorf("migration validation failed: %d issue(s)", len(issues))
	}
	return nil
}

// applyMigration runs one migration in a transaction, tracking the dirty
// flag so a crash mid-migration is visible afterwards.
func (m *Migrator) applyMigration(ctx context.Context, migration Migration, up bool) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if up {
		_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version, dirty) VALUES ($1, TRUE) ON CONFLICT (version) DO UPDATE SET dirty = TRUE", migration.Version)
	} else {
		_, err = tx.Exec(ctx, "UPDATE schema_migrations SET dirty = TRUE WHERE version = $1", migration.Version)
	}
	if err != nil {
		return err
	}

	sql := migration.UpSQL
	if !up {
		sql = migration.DownSQL
	}
	if strings.TrimSpace(sql) != "" {
		if _, err = tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("migration SQL failed: %w", err)
		}
	}

	if up {
		_, err = tx.Exec(ctx, "UPDATE schema_migrations SET dirty = FALSE, applied_at = NOW() WHERE version = $1", migration.Version)
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// loadMigrations reads every .up.sql/.down.sql pair under the migrations
// directory.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	migrations := []Migration{}

	if _, err := os.Stat(m.migrationsPath); os.IsNotExist(err) {
		return migrations, nil
	}

	migrationMap := make(map[int64]*Migration)

	err := filepath.WalkDir(m.migrationsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}

		filename := d.Name()
		if strings.HasSuffix(filename, ".up.sql") || strings.HasSuffix(filename, ".down.sql") {
			return m.loadMigrationFile(path, filename, migrationMap)
		}

		m.logger.Warn("skipping unsupported migration file", "file", filename)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, migration := range migrationMap {
		migrations = append(migrations, *migration)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (m *Migrator) loadMigrationFile(path, filename string, migrationMap map[int64]*Migration) error {
	var (
		isUp         bool
		baseFilename string
	)
	if strings.HasSuffix(filename, ".up.sql") {
		isUp = true
		baseFilename = strings.TrimSuffix(filename, ".up.sql")
	} else {
		baseFilename = strings.TrimSuffix(filename, ".down.sql")
	}

	parts := strings.SplitN(baseFilename, "_", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid migration filename format: %s (expected: YYYYMMDDHHMMSS_migration_name.up/down.sql)", filename)
	}

	version, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version in filename: %s", parts[0])
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	migration, exists := migrationMap[version]
	if !exists {
		migration = &Migration{
			Version: version,
			Name:    strings.ReplaceAll(parts[1], "_", " "),
		}
		migrationMap[version] = migration
	}

	if isUp {
		migration.UpSQL = strings.TrimSpace(string(content))
		migration.UpFilePath = path
	} else {
		migration.DownSQL = strings.TrimSpace(string(content))
		migration.DownFilePath = path
	}
	return nil
}

func (m *Migrator) getAppliedVersions(ctx context.Context) ([]int64, error) {
	rows, err := m.pool.Query(ctx, "SELECT version FROM schema_migrations WHERE dirty = FALSE ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []int64{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := m.pool.Query(ctx, "SELECT version, dirty, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []MigrationRecord{}
	for rows.Next() {
		var record MigrationRecord
		if err := rows.Scan(&record.Version, &record.Dirty, &record.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func containsVersion(versions []int64, version int64) bool {
	for _, v := range versions {
		if v == version {
			return true
		}
	}
	return false
}

func findMigrationByVersion(migrations []Migration, version int64) *Migration {
	for i := range migrations {
		if migrations[i].Version == version {
			return &migrations[i]
		}
	}
	return nil
}
