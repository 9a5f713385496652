package driven

import "context"

// KeyVerifier checks a plaintext API key against the upstream service it
// belongs to. The vault calls this once at registration time, before a key
// is encrypted and stored, so a user cannot register a key the service
// would reject anyway.
type KeyVerifier interface {
	// VerifyKey performs a cheap authenticated request with the given key.
	// A nil return means the service accepted the key. A rest.AuthError
	// means the key was rejected; any other error means verification could
	// not be completed.
	VerifyKey(ctx context.Context, key string) error
}
