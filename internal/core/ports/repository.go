package ports

import "context"

// Repository is the minimal contract the transaction layer requires from the
// versioned-storage backend. It deliberately exposes nothing richer: stage a
// path, create a revision, sync with the configured remote.
//
//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks
type Repository interface {
	// Stage registers the file at the given slash-separated path, relative
	// to the working tree root, with the change-tracking index. Staging a
	// path whose content matches the last revision is allowed.
	Stage(path string) error

	// Remove deletes the file at the given relative path from both the
	// working tree and the change-tracking index. Used to roll back a
	// freshly created file.
	Remove(path string) error

	// Commit creates a new revision recording everything staged, with the
	// given message. An empty change set still produces a revision.
	Commit(ctx context.Context, message string) (revision string, err error)

	// HasRemote reports whether a remote counterpart is configured.
	HasRemote() bool

	// Push syncs local revisions to the remote. Pushing when the remote is
	// already up to date is a no-op, not an error.
	Push(ctx context.Context) error

	// Pull fast-forwards the working tree from the remote. A divergent
	// remote is an error; the engine never merges.
	Pull(ctx context.Context) error
}
