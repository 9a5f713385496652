package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flavortown-bot/flavorvault/internal/domain/model"
	"github.com/flavortown-bot/flavorvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Rows hold ciphertext and salt as opaque blobs; this repo never sees a
// plaintext secret or a password.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Put stores or replaces the credential for (userID, service). The upsert is
// a single statement, so concurrent readers never observe a partial write.
func (r *CredentialRepo) Put(ctx context.Context, userID int64, service model.Service, ciphertext, salt []byte, metadata *string) error {
	const query = `
		INSERT INTO credentials (user_id, service, ciphertext, salt, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, service) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			salt       = excluded.salt,
			metadata   = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.Writer.ExecContext(ctx, query, userID, string(service), ciphertext, salt, metadata)
	if err != nil {
		return &driven.StorageError{Op: fmt.Sprintf("put credential %q", service), Err: err}
	}
	return nil
}

// Get retrieves the credential for (userID, service).
// Returns (nil, nil) if no credential exists; absence is not an error.
func (r *CredentialRepo) Get(ctx context.Context, userID int64, service model.Service) (*model.Credential, error) {
	const query = `
		SELECT ciphertext, salt, metadata, created_at, updated_at
		FROM credentials
		WHERE user_id = ? AND service = ?`

	cred := model.Credential{UserID: userID, Service: service}
	var createdAt, updatedAt string

	err := r.db.Reader.QueryRowContext(ctx, query, userID, string(service)).
		Scan(&cred.Ciphertext, &cred.Salt, &cred.Metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &driven.StorageError{Op: fmt.Sprintf("get credential %q", service), Err: err}
	}

	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, &driven.StorageError{Op: "parse created_at", Err: err}
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, &driven.StorageError{Op: "parse updated_at", Err: err}
	}

	return &cred, nil
}

// Delete removes the credential for (userID, service) and reports how many
// rows were removed.
func (r *CredentialRepo) Delete(ctx context.Context, userID int64, service model.Service) (int64, error) {
	const query = `DELETE FROM credentials WHERE user_id = ? AND service = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, userID, string(service))
	if err != nil {
		return 0, &driven.StorageError{Op: fmt.Sprintf("delete credential %q", service), Err: err}
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, &driven.StorageError{Op: "count deleted rows", Err: err}
	}
	return removed, nil
}

// DeleteAll removes every credential for the user in one statement.
func (r *CredentialRepo) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	const query = `DELETE FROM credentials WHERE user_id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, &driven.StorageError{Op: "delete all credentials", Err: err}
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, &driven.StorageError{Op: "count deleted rows", Err: err}
	}
	return removed, nil
}

// Exists reports whether a credential is stored for (userID, service).
func (r *CredentialRepo) Exists(ctx context.Context, userID int64, service model.Service) (bool, error) {
	const query = `SELECT 1 FROM credentials WHERE user_id = ? AND service = ?`

	var one int
	err := r.db.Reader.QueryRowContext(ctx, query, userID, string(service)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &driven.StorageError{Op: fmt.Sprintf("check credential %q", service), Err: err}
	}
	return true, nil
}

// parseTime parses SQLite timestamp strings. CURRENT_TIMESTAMP produces
// "2006-01-02 15:04:05"; RFC3339 is accepted for rows written by tests.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
