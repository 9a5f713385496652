package driven

import (
	"context"

	"github.com/flavortown-bot/flavorvault/internal/domain/model"
)

// CredentialStore defines the driven port for encrypted credential
// persistence. Implementations store ciphertext and salt exactly as given;
// encryption and decryption happen above this boundary, so a store never
// sees a plaintext secret.
type CredentialStore interface {
	// Put stores or replaces the credential for (userID, service) atomically.
	// An existing row's ciphertext, salt and metadata are overwritten and its
	// updated_at timestamp bumped.
	Put(ctx context.Context, userID int64, service model.Service, ciphertext, salt []byte, metadata *string) error

	// Get retrieves the credential for (userID, service).
	// Returns (nil, nil) if no credential exists; absence is not an error.
	Get(ctx context.Context, userID int64, service model.Service) (*model.Credential, error)

	// Delete removes the credential for (userID, service) and reports how
	// many rows were removed (0 or 1).
	Delete(ctx context.Context, userID int64, service model.Service) (int64, error)

	// DeleteAll removes every credential for the user in one atomic
	// operation and reports how many rows were removed.
	DeleteAll(ctx context.Context, userID int64) (int64, error)

	// Exists reports whether a credential is stored for (userID, service).
	Exists(ctx context.Context, userID int64, service model.Service) (bool, error)
}
