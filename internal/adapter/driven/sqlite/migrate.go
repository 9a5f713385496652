package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending database migrations embedded in the
// binary. It is safe to call on every startup; already-applied migrations
// are skipped.
func RunMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// legacyDefaultService tags rows carried over from the single-service layout,
// which predates per-service credentials and only ever held Flavortown keys.
const legacyDefaultService = "flavortown"

// MigrateLegacy moves rows from the legacy single-service `user_keys` table
// (keyed by user alone) into `credentials`, tagging them with the default
// service, then drops the legacy table. The whole rewrite runs in one
// transaction: if it is interrupted before commit, nothing has changed and
// the next startup re-runs it. When the legacy table does not exist this is
// a no-op, so calling it on every startup is safe.
//
// This cannot be an embedded .sql migration because the statements must not
// run at all on databases that never had the legacy layout.
func MigrateLegacy(ctx context.Context, db *sql.DB) (int64, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'user_keys'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("detect legacy table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin legacy migration: %w", err)
	}
	defer tx.Rollback()

	// Ciphertext and salt bytes are carried over verbatim. A conflict means
	// the user already re-registered under the new layout; the newer row wins.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, service, ciphertext, salt, created_at, updated_at)
		SELECT discord_id, ?, encrypted_key, salt, created_at, updated_at
		FROM user_keys
		WHERE true
		ON CONFLICT(user_id, service) DO NOTHING`,
		legacyDefaultService,
	)
	if err != nil {
		return 0, fmt.Errorf("copy legacy rows: %w", err)
	}

	migrated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count migrated rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE user_keys`); err != nil {
		return 0, fmt.Errorf("drop legacy table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit legacy migration: %w", err)
	}

	return migrated, nil
}
