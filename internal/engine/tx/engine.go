// Package tx makes a single logical index mutation atomic with respect to the
// backing repository and serialises concurrent mutations against one working
// tree.
package tx

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenk/backoff"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/internal/core/ports"
	"go.trai.ch/zerr"
)

// State names the phases a mutation moves through. Every mutation runs
// Idle -> Locked -> Staged -> Committed and, with a remote configured,
// -> Synced; failures roll back to the pre-mutation tree.
type State string

const (
	// StateIdle is the rest state between mutations.
	StateIdle State = "idle"
	// StateLocked means exclusive access to the working tree is held.
	StateLocked State = "locked"
	// StateStaged means the filesystem write is done and registered with
	// the repository's change tracking.
	StateStaged State = "staged"
	// StateCommitted means a revision records the change; the mutation is
	// durable locally.
	StateCommitted State = "committed"
	// StateSynced means the revision has been pushed to the remote.
	StateSynced State = "synced"
)

// Mutation is one logical change to the index.
type Mutation struct {
	// Message is the revision message, identifying crate and version.
	Message string

	// Paths are the slash-separated working-tree paths the mutation
	// touches.
	Paths []string

	// Apply performs the filesystem write. It must be all-or-nothing: on
	// error the tree is unchanged (the file store's atomic replace
	// guarantees this).
	Apply func(ctx context.Context) error
}

// Engine drives mutations through the transaction state machine.
type Engine struct {
	root   string
	repo   ports.Repository
	locker ports.Locker
	log    ports.Logger

	// NewBackOff builds the retry policy for the sync step. Replaceable
	// so tests fail fast instead of waiting out the default policy.
	NewBackOff func() backoff.BackOff
}

// New creates an Engine for the working tree at root.
func New(root string, repo ports.Repository, locker ports.Locker, log ports.Logger) *Engine {
	return &Engine{
		root:       root,
		repo:       repo,
		locker:     locker,
		log:        log,
		NewBackOff: BackOffPolicy(DefaultSyncTimeout),
	}
}

// DefaultSyncTimeout bounds the total time spent retrying a push.
const DefaultSyncTimeout = 30 * time.Second

// BackOffPolicy builds the standard push retry policy: exponential backoff
// capped at maxElapsed in total.
func BackOffPolicy(maxElapsed time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		policy.MaxInterval = 5 * time.Second
		policy.MaxElapsedTime = maxElapsed
		return policy
	}
}

// Run executes one mutation. On any failure before the commit the working
// tree and staging area are restored to their pre-mutation content and the
// lock is released; callers never clean up partial state. A push failure
// after the commit is reported as domain.ErrSyncFailed and leaves the local
// commit intact.
func (e *Engine) Run(ctx context.Context, m Mutation) error {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	pre, err := e.snapshot(m.Paths)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return stateErr(err, StateLocked)
	}

	if err := m.Apply(ctx); err != nil {
		return err
	}

	for _, p := range m.Paths {
		if err := e.repo.Stage(p); err != nil {
			e.rollback(pre)
			return stateErr(domain.With(domain.ErrStageFailed, "cause", err.Error()), StateLocked)
		}
	}

	if err := ctx.Err(); err != nil {
		e.rollback(pre)
		return stateErr(err, StateStaged)
	}

	rev, err := e.repo.Commit(ctx, m.Message)
	if err != nil {
		e.rollback(pre)
		return stateErr(domain.With(domain.ErrCommitFailed, "cause", err.Error()), StateStaged)
	}
	e.log.Info("committed " + rev + ": " + m.Message)

	if !e.repo.HasRemote() {
		return nil
	}
	return e.Sync(ctx)
}

// Sync pushes local revisions to the remote, retrying transient failures with
// exponential backoff. It is safe to call again after a failure: pushing an
// already-accepted revision is a no-op. The local commit is never rolled
// back on sync failure.
func (e *Engine) Sync(ctx context.Context) error {
	policy := e.NewBackOff()

	attempt := func() error {
		if err := e.repo.Push(ctx); err != nil {
			e.log.Warn("push failed, retrying: " + err.Error())
			return err
		}
		return nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		return stateErr(domain.With(domain.ErrSyncFailed, "cause", err.Error()), StateCommitted)
	}
	e.log.Info("pushed to origin")
	return nil
}

type preImage struct {
	path    string
	content []byte
	existed bool
}

func (e *Engine) snapshot(paths []string) ([]preImage, error) {
	images := make([]preImage, 0, len(paths))
	for _, p := range paths {
		abs := filepath.Join(e.root, filepath.FromSlash(p))

		content, err := os.ReadFile(abs) //nolint:gosec // Paths come from validated crate names
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, zerr.With(zerr.Wrap(err, "failed to snapshot path"), "path", p)
			}
			images = append(images, preImage{path: p})
			continue
		}
		images = append(images, preImage{path: p, content: content, existed: true})
	}
	return images, nil
}

// rollback restores each touched path to its pre-mutation content and brings
// the staging area back in line. Best effort on the staging side: a staged
// entry identical to the last revision is indistinguishable from clean.
func (e *Engine) rollback(pre []preImage) {
	for _, img := range pre {
		abs := filepath.Join(e.root, filepath.FromSlash(img.path))
		if img.existed {
			if err := os.WriteFile(abs, img.content, 0o644); err != nil { //nolint:gosec // Index files are world readable
				e.log.Error(zerr.With(zerr.Wrap(err, "rollback failed to restore path"), "path", img.path))
				continue
			}
			if err := e.repo.Stage(img.path); err != nil {
				e.log.Error(err)
			}
			continue
		}
		// Remove drops both the file and any staged entry; the path may
		// never have reached the staging area, so fall back to a plain
		// unlink.
		if err := e.repo.Remove(img.path); err != nil {
			if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
				e.log.Error(zerr.With(zerr.Wrap(err, "rollback failed to remove path"), "path", img.path))
			}
		}
	}
}

func stateErr(err error, s State) error {
	return zerr.With(err, "state", string(s))
}
