// Package application wires the crypto engine, credential store and session
// cache into the vault operations the command layer consumes.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/flavortown-bot/flavorvault/internal/crypto"
	"github.com/flavortown-bot/flavorvault/internal/domain/model"
	"github.com/flavortown-bot/flavorvault/internal/domain/port/driven"
	"github.com/flavortown-bot/flavorvault/internal/session"
)

var (
	// ErrNoCredential means no credential is stored for (user, service).
	// The user needs to register one before anything can be unlocked.
	ErrNoCredential = errors.New("no stored credential")

	// ErrBadPassword means decryption failed: wrong password or corrupted
	// ciphertext, deliberately indistinguishable. This is an expected
	// outcome, surfaced to the user as "incorrect password, try again",
	// never reported as a system fault.
	ErrBadPassword = errors.New("incorrect password")

	// ErrLocked means a credential exists but no decrypted secret is
	// cached; the caller must prompt for the password and call Unlock.
	ErrLocked = errors.New("credential locked")

	// ErrUnknownService rejects a service name outside the known set.
	ErrUnknownService = errors.New("unknown service")
)

// VaultService orchestrates unlock/store/forget over the credential store,
// crypto engine and session cache. Key derivation is deliberately slow, so
// concurrent derivations run under a weighted semaphore sized to the CPU
// count: one user's password attempt cannot monopolize the scheduler.
//
// Composite store+cache operations are serialized per (user, service) key:
// an Unlock holds the key's mutex from the row read through the cache write,
// so a Forget or Store that runs in between cannot be undone by a stale
// cache insert.
type VaultService struct {
	store     driven.CredentialStore
	engine    *crypto.Engine
	sessions  *session.Cache
	verifiers map[model.Service]driven.KeyVerifier
	kdfSem    *semaphore.Weighted
	logger    *slog.Logger

	lockMu sync.Mutex
	locks  map[vaultKey]*sync.Mutex
}

type vaultKey struct {
	userID  int64
	service model.Service
}

// NewVaultService creates a VaultService. verifiers maps each service to the
// client used for the registration-time live key check; a service with no
// verifier skips that check.
func NewVaultService(
	store driven.CredentialStore,
	engine *crypto.Engine,
	sessions *session.Cache,
	verifiers map[model.Service]driven.KeyVerifier,
	logger *slog.Logger,
) *VaultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultService{
		store:     store,
		engine:    engine,
		sessions:  sessions,
		verifiers: verifiers,
		kdfSem:    semaphore.NewWeighted(int64(max(1, runtime.GOMAXPROCS(0)))),
		logger:    logger,
		locks:     make(map[vaultKey]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing composite operations on one
// (user, service) key.
func (s *VaultService) keyLock(userID int64, svc model.Service) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	k := vaultKey{userID: userID, service: svc}
	l, ok := s.locks[k]
	if !ok {
		l = new(sync.Mutex)
		s.locks[k] = l
	}
	return l
}

// Store verifies the plaintext secret against the upstream service, encrypts
// it under the user's password and persists the result. Any previously
// cached session entry for the key is invalidated so a rotation takes effect
// immediately.
func (s *VaultService) Store(ctx context.Context, userID int64, svc model.Service, secret, password string, metadata *string) error {
	if !svc.Valid() {
		return ErrUnknownService
	}

	if verifier, ok := s.verifiers[svc]; ok {
		if err := verifier.VerifyKey(ctx, secret); err != nil {
			return fmt.Errorf("verify key: %w", err)
		}
	}

	ciphertext, salt, err := s.encrypt(ctx, secret, password)
	if err != nil {
		return err
	}

	// The put and the purge form one atomic step relative to a concurrent
	// Unlock, so a rotation is never shadowed by a stale cache insert.
	l := s.keyLock(userID, svc)
	l.Lock()
	defer l.Unlock()

	if err := s.store.Put(ctx, userID, svc, ciphertext, salt, metadata); err != nil {
		return err
	}
	s.sessions.ClearService(userID, svc)

	s.logger.Info("credential stored", "user_id", userID, "service", svc)
	return nil
}

// Unlock verifies the password by attempting a full decrypt of the stored
// credential -- the only verification mechanism there is -- and on success
// caches the secret and returns it.
//
// Returns ErrNoCredential when nothing is stored, ErrBadPassword when
// decryption fails, and a *driven.StorageError when the store itself fails.
func (s *VaultService) Unlock(ctx context.Context, userID int64, svc model.Service, password string) (string, error) {
	// Held across the row read, the decrypt and the cache write: a Forget or
	// Store interleaved with an in-flight unlock must not leave the old
	// secret in the cache.
	l := s.keyLock(userID, svc)
	l.Lock()
	defer l.Unlock()

	cred, err := s.store.Get(ctx, userID, svc)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", ErrNoCredential
	}

	secret, ok, err := s.decrypt(ctx, cred, password)
	if err != nil {
		return "", err
	}
	if !ok {
		// Expected control flow, not a fault. Debug level only.
		s.logger.Debug("unlock failed", "user_id", userID, "service", svc)
		return "", ErrBadPassword
	}

	s.sessions.Put(userID, svc, secret, cred.Metadata)
	s.logger.Info("session unlocked", "user_id", userID, "service", svc)
	return secret, nil
}

// GetCached returns the cached secret for (user, service), if any. A hit
// extends the session's expiry.
func (s *VaultService) GetCached(userID int64, svc model.Service) (string, bool) {
	secret, _, ok := s.sessions.Get(userID, svc)
	return secret, ok
}

// EnsureSecret is the guard composed at the start of handlers that need API
// access: a cached secret is returned directly; otherwise the caller short-
// circuits on ErrLocked (prompt for password) or ErrNoCredential (prompt to
// register).
func (s *VaultService) EnsureSecret(ctx context.Context, userID int64, svc model.Service) (string, error) {
	if secret, _, ok := s.sessions.Get(userID, svc); ok {
		return secret, nil
	}

	exists, err := s.store.Exists(ctx, userID, svc)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNoCredential
	}
	return "", ErrLocked
}

// HasCredential reports whether a credential is stored for (user, service).
func (s *VaultService) HasCredential(ctx context.Context, userID int64, svc model.Service) (bool, error) {
	return s.store.Exists(ctx, userID, svc)
}

// Forget removes the stored credential for (user, service) and purges the
// corresponding session entry. After Forget returns, neither the store nor
// the cache can serve the old secret.
func (s *VaultService) Forget(ctx context.Context, userID int64, svc model.Service) (int64, error) {
	l := s.keyLock(userID, svc)
	l.Lock()
	defer l.Unlock()

	removed, err := s.store.Delete(ctx, userID, svc)
	if err != nil {
		return 0, err
	}
	s.sessions.ClearService(userID, svc)

	s.logger.Info("credential forgotten", "user_id", userID, "service", svc, "removed", removed)
	return removed, nil
}

// ForgetAll removes every stored credential for the user and purges all of
// their session entries.
func (s *VaultService) ForgetAll(ctx context.Context, userID int64) (int64, error) {
	// The service set is closed, so taking every key's lock in declaration
	// order is cheap and cannot deadlock against single-key operations.
	for _, svc := range model.Services() {
		l := s.keyLock(userID, svc)
		l.Lock()
		defer l.Unlock()
	}

	removed, err := s.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.sessions.Clear(userID)

	s.logger.Info("all credentials forgotten", "user_id", userID, "removed", removed)
	return removed, nil
}

// Sessions exposes the cache for administrative operations (clear-all).
func (s *VaultService) Sessions() *session.Cache {
	return s.sessions
}

func (s *VaultService) encrypt(ctx context.Context, secret, password string) (ciphertext, salt []byte, err error) {
	if err := s.kdfSem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer s.kdfSem.Release(1)
	return s.engine.Encrypt(secret, password)
}

func (s *VaultService) decrypt(ctx context.Context, cred *model.Credential, password string) (string, bool, error) {
	if err := s.kdfSem.Acquire(ctx, 1); err != nil {
		return "", false, err
	}
	defer s.kdfSem.Release(1)
	secret, ok := s.engine.Decrypt(cred.Ciphertext, cred.Salt, password)
	return secret, ok, nil
}
