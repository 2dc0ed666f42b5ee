// Package gitrepo implements the versioned-storage backend over a git
// repository on the host filesystem, using go-git.
package gitrepo

import (
	"context"
	"errors"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/internal/core/ports"
	"go.trai.ch/zerr"
)

const remoteName = "origin"

// Identity is the committer recorded on every revision.
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity is used when the caller does not configure one.
var DefaultIdentity = Identity{
	Name:  "crate-index",
	Email: "crate-index@localhost",
}

var _ ports.Repository = (*Repository)(nil)

// Repository wraps a git working tree rooted at the index directory.
type Repository struct {
	repo     *git.Repository
	identity Identity
}

// Init creates a fresh git repository at root. It fails with
// domain.ErrAlreadyExists if one is already present. An origin URL may be
// empty, in which case the index is local only.
func Init(root, origin string, identity Identity) (*Repository, error) {
	repo, err := git.PlainInit(root, false)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			return nil, domain.With(domain.ErrAlreadyExists, "root", root)
		}
		return nil, zerr.Wrap(err, "failed to init repository")
	}

	if origin != "" {
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: remoteName,
			URLs: []string{origin},
		})
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to add origin"), "origin", origin)
		}
	}

	return newRepository(repo, identity), nil
}

// Open attaches to an existing repository at root, failing with
// domain.ErrNotFound if none exists.
func Open(root string, identity Identity) (*Repository, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, domain.With(domain.ErrNotFound, "root", root)
		}
		return nil, zerr.Wrap(err, "failed to open repository")
	}
	return newRepository(repo, identity), nil
}

func newRepository(repo *git.Repository, identity Identity) *Repository {
	if identity == (Identity{}) {
		identity = DefaultIdentity
	}
	return &Repository{repo: repo, identity: identity}
}

// Stage registers the file at the given relative path with the git index.
func (r *Repository) Stage(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return zerr.Wrap(err, "failed to open worktree")
	}
	if _, err := wt.Add(path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stage path"), "path", path)
	}
	return nil
}

// Remove deletes the file at the given relative path from the worktree and
// the git index.
func (r *Repository) Remove(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return zerr.Wrap(err, "failed to open worktree")
	}
	if _, err := wt.Remove(path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove path"), "path", path)
	}
	return nil
}

// Commit records everything staged as a new revision and returns its hash.
// Empty change sets are committed too: a redundant yank still produces a
// revision.
func (r *Repository) Commit(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", zerr.Wrap(err, "failed to open worktree")
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.identity.Name,
			Email: r.identity.Email,
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", zerr.Wrap(err, "failed to commit")
	}
	return hash.String(), nil
}

// HasRemote reports whether an origin remote is configured.
func (r *Repository) HasRemote() bool {
	_, err := r.repo.Remote(remoteName)
	return err == nil
}

// Push syncs local revisions to origin. An up-to-date remote is a no-op.
func (r *Repository) Push(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &git.PushOptions{RemoteName: remoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return zerr.Wrap(err, "failed to push to origin")
	}
	return nil
}

// Pull fast-forwards from origin. A divergent remote is surfaced, never
// merged; reconciling concurrent writers is an operator decision.
func (r *Repository) Pull(ctx context.Context) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return zerr.Wrap(err, "failed to open worktree")
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: remoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return zerr.Wrap(err, "failed to pull from origin")
	}
	return nil
}
