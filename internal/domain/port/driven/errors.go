package driven

import "fmt"

// StorageError wraps an I/O-level failure from the credential store (disk,
// lock contention, corruption). It is distinct from "credential not found",
// which Get reports as a nil credential with a nil error. Callers should
// surface a StorageError as "storage unavailable, try again", never as a
// missing credential.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
