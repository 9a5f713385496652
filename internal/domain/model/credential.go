package model

import "time"

// Credential is a durable, encrypted secret a user has registered for one
// upstream service. Only ciphertext and the key-derivation salt are ever
// persisted; the plaintext exists only in memory after a successful unlock.
type Credential struct {
	UserID     int64
	Service    Service
	Ciphertext []byte
	Salt       []byte
	Metadata   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
