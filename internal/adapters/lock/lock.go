// Package lock serialises mutations against one index working tree, both
// across goroutines sharing a handle and across processes sharing a root.
package lock

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/internal/core/ports"
	"go.trai.ch/zerr"
)

// FileName is the advisory lock file created inside the index root.
const FileName = ".crate-index.lock"

const retryInterval = 25 * time.Millisecond

var _ ports.Locker = (*Lock)(nil)

// Lock combines an in-memory semaphore scoped to the index handle with a
// filesystem advisory lock, so a second process blocks rather than
// interleaving writes.
type Lock struct {
	sem     chan struct{}
	path    string
	timeout time.Duration
}

// New creates a Lock for the working tree at root. A zero timeout means
// callers wait until their context is cancelled.
func New(root string, timeout time.Duration) *Lock {
	return &Lock{
		sem:     make(chan struct{}, 1),
		path:    filepath.Join(root, FileName),
		timeout: timeout,
	}
}

// Acquire takes the in-memory slot, then the advisory file lock. The returned
// release function is safe to call exactly once and must run on every exit
// path.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, lockErr(ctx.Err())
	}

	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(ctx, retryInterval)
	if err != nil || !locked {
		<-l.sem
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, lockErr(err)
	}

	return func() {
		_ = fl.Unlock()
		<-l.sem
	}, nil
}

func lockErr(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return domain.With(domain.ErrLockTimeout, "cause", cause.Error())
	}
	return zerr.Wrap(cause, "lock acquisition aborted")
}
