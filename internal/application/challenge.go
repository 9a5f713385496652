package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flavortown-bot/flavorvault/internal/domain/model"
)

// DefaultChallengeTTL bounds how long a password prompt may stay open.
const DefaultChallengeTTL = 5 * time.Minute

var (
	// ErrChallengeNotFound means the challenge was never issued, was
	// already resolved, or was cancelled.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired means the prompt timed out before a response.
	// An expired challenge is guaranteed to have had no side effects.
	ErrChallengeExpired = errors.New("challenge expired")
)

// Challenge is one pending password prompt: the user was asked for their
// password so that a named action can proceed. It is an explicit state
// object rather than a callback captured across the prompt boundary.
type Challenge struct {
	ID        string
	UserID    int64
	Service   model.Service
	Action    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeManager tracks pending password prompts. A challenge is
// single-use: resolving, cancelling or expiring removes it. Until a
// challenge is resolved successfully nothing is written to the store or
// the session cache, so abandoning a prompt leaves no side effects.
type ChallengeManager struct {
	vault *VaultService
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]Challenge
}

// NewChallengeManager creates a manager issuing challenges with the given
// lifetime. Non-positive TTLs fall back to DefaultChallengeTTL.
func NewChallengeManager(vault *VaultService, ttl time.Duration) *ChallengeManager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeManager{
		vault:   vault,
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]Challenge),
	}
}

// Issue records a new pending challenge for (user, service) and returns it.
// action labels what the user was trying to do, for re-dispatch after a
// successful unlock.
func (m *ChallengeManager) Issue(userID int64, svc model.Service, action string) Challenge {
	now := m.now()
	ch := Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Service:   svc,
		Action:    action,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.pending[ch.ID] = ch
	m.mu.Unlock()

	return ch
}

// Resolve consumes the challenge and attempts the unlock with the supplied
// password. On success the secret is cached and returned; ErrBadPassword
// propagates from the vault when decryption fails. Either way the challenge
// is spent -- a rejected password requires a fresh prompt.
func (m *ChallengeManager) Resolve(ctx context.Context, id, password string) (string, error) {
	ch, err := m.take(id)
	if err != nil {
		return "", err
	}
	return m.vault.Unlock(ctx, ch.UserID, ch.Service, password)
}

// Cancel removes a pending challenge without side effects. Returns false if
// the challenge was not pending (unknown, resolved, or already expired).
func (m *ChallengeManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.pending[id]
	if !ok {
		return false
	}
	delete(m.pending, id)
	return m.now().Before(ch.ExpiresAt)
}

// Pending returns the challenge if it is still open. Expired entries found
// here are removed, mirroring the session cache's lazy expiry.
func (m *ChallengeManager) Pending(id string) (Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.pending[id]
	if !ok {
		return Challenge{}, false
	}
	if !m.now().Before(ch.ExpiresAt) {
		delete(m.pending, id)
		return Challenge{}, false
	}
	return ch, true
}

// Sweep removes all expired challenges and returns how many were dropped.
// Optional housekeeping; expiry is otherwise checked lazily.
func (m *ChallengeManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, ch := range m.pending {
		if !now.Before(ch.ExpiresAt) {
			delete(m.pending, id)
			removed++
		}
	}
	return removed
}

// take removes and returns the challenge, enforcing single use and expiry.
func (m *ChallengeManager) take(id string) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.pending[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(m.pending, id)

	if !m.now().Before(ch.ExpiresAt) {
		return Challenge{}, ErrChallengeExpired
	}
	return ch, nil
}
