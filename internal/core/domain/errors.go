package domain

import "go.trai.ch/zerr"

// With attaches a metadata field to one of the sentinel errors below and
// keeps the sentinel in the unwrap chain, so callers can still discriminate
// the result with errors.Is. zerr.With alone copies the sentinel out of the
// chain.
func With(sentinel error, key string, value any) error {
	return zerr.With(zerr.Wrap(sentinel, ""), key, value)
}

var (
	// ErrInvalidName is returned when a crate name fails validation.
	ErrInvalidName = zerr.New("invalid crate name")

	// ErrInvalidVersion is returned when a version string is not valid semver.
	ErrInvalidVersion = zerr.New("invalid version")

	// ErrInvalidChecksum is returned when a checksum is not a 64-character hex digest.
	ErrInvalidChecksum = zerr.New("invalid checksum")

	// ErrInvalidDependency is returned when a dependency entry fails validation.
	ErrInvalidDependency = zerr.New("invalid dependency")

	// ErrDuplicateVersion is returned when inserting a record whose name and
	// version already exist in the index.
	ErrDuplicateVersion = zerr.New("duplicate version")

	// ErrVersionNotFound is returned when the requested version does not exist
	// for the crate.
	ErrVersionNotFound = zerr.New("version not found")

	// ErrCrateNotFound is returned when the index has no file for the crate.
	ErrCrateNotFound = zerr.New("crate not found")

	// ErrLockTimeout is returned when exclusive access to the working tree
	// could not be acquired within the configured timeout.
	ErrLockTimeout = zerr.New("timed out acquiring index lock")

	// ErrStageFailed is returned when registering a changed path with the
	// repository failed. The change has been rolled back.
	ErrStageFailed = zerr.New("failed to stage change")

	// ErrCommitFailed is returned when creating a revision failed. The staged
	// change has been rolled back.
	ErrCommitFailed = zerr.New("failed to commit change")

	// ErrSyncFailed is returned when pushing to the remote failed. The local
	// commit is durable; only the sync needs to be retried.
	ErrSyncFailed = zerr.New("failed to sync with remote")

	// ErrCorruptIndex is returned when a log line or the root config cannot be
	// parsed. Corruption is never auto-repaired.
	ErrCorruptIndex = zerr.New("corrupt index")

	// ErrAlreadyExists is returned when initialising over an existing repository.
	ErrAlreadyExists = zerr.New("index already exists")

	// ErrNotFound is returned when opening a root with no repository.
	ErrNotFound = zerr.New("no index at root")
)
