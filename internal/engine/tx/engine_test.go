package tx_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenk/backoff"
	"github.com/cespare/xxhash/v2"
	"github.com/rust-bucket/crate-index/internal/adapters/lock"
	"github.com/rust-bucket/crate-index/internal/adapters/logger"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/internal/core/ports/mocks"
	"github.com/rust-bucket/crate-index/internal/engine/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newEngine(t *testing.T) (*tx.Engine, *mocks.MockRepository, string) {
	t.Helper()

	root := t.TempDir()
	repo := mocks.NewMockRepository(gomock.NewController(t))
	eng := tx.New(root, repo, lock.New(root, time.Second), logger.Nop{})
	eng.NewBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	return eng, repo, root
}

func writeMutation(root, relPath, content string) tx.Mutation {
	return tx.Mutation{
		Message: "updating crate `" + relPath + "`",
		Paths:   []string{relPath},
		Apply: func(context.Context) error {
			abs := filepath.Join(root, filepath.FromSlash(relPath))
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return err
			}
			return os.WriteFile(abs, []byte(content), 0o644)
		},
	}
}

// treeHash fingerprints every regular file under root, ignoring the engine's
// own lock file, so tests can assert a failed mutation left no trace.
func treeHash(t *testing.T, root string) uint64 {
	t.Helper()

	digest := xxhash.New()
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || entry.Name() == lock.FileName {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := digest.WriteString(filepath.ToSlash(rel) + "\x00"); err != nil {
			return err
		}
		if _, err := digest.Write(content); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)
	return digest.Sum64()
}

func TestRunCommitsWithoutRemote(t *testing.T) {
	eng, repo, root := newEngine(t)

	repo.EXPECT().Stage("1/a").Return(nil)
	repo.EXPECT().Commit(gomock.Any(), "updating crate `1/a`").Return("c0ffee", nil)
	repo.EXPECT().HasRemote().Return(false)

	require.NoError(t, eng.Run(context.Background(), writeMutation(root, "1/a", "one\n")))

	content, err := os.ReadFile(filepath.Join(root, "1", "a"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(content))
}

func TestRunApplyFailureLeavesTreeUntouched(t *testing.T) {
	eng, _, root := newEngine(t)
	before := treeHash(t, root)

	boom := errors.New("disk full")
	err := eng.Run(context.Background(), tx.Mutation{
		Message: "updating crate `1/a`",
		Paths:   []string{"1/a"},
		Apply:   func(context.Context) error { return boom },
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, treeHash(t, root))
}

func TestRunStageFailureRemovesFreshFile(t *testing.T) {
	eng, repo, root := newEngine(t)
	before := treeHash(t, root)

	repo.EXPECT().Stage("1/a").Return(errors.New("index locked"))
	repo.EXPECT().Remove("1/a").DoAndReturn(func(path string) error {
		return os.Remove(filepath.Join(root, filepath.FromSlash(path)))
	})

	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\n"))

	require.ErrorIs(t, err, domain.ErrStageFailed)
	assert.NoFileExists(t, filepath.Join(root, "1", "a"))
	assert.Equal(t, before, treeHash(t, root))
}

func TestRunCommitFailureRestoresPreviousContent(t *testing.T) {
	eng, repo, root := newEngine(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "1", "a"), []byte("one\n"), 0o644))
	before := treeHash(t, root)

	repo.EXPECT().Stage("1/a").Return(nil).Times(2)
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).Return("", errors.New("object store corrupt"))

	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\ntwo\n"))

	require.ErrorIs(t, err, domain.ErrCommitFailed)
	content, readErr := os.ReadFile(filepath.Join(root, "1", "a"))
	require.NoError(t, readErr)
	assert.Equal(t, "one\n", string(content))
	assert.Equal(t, before, treeHash(t, root))
}

func TestRunCommitFailureRemovesFreshFileViaUnlinkFallback(t *testing.T) {
	eng, repo, root := newEngine(t)
	before := treeHash(t, root)

	repo.EXPECT().Stage("1/a").Return(nil)
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).Return("", errors.New("object store corrupt"))
	repo.EXPECT().Remove("1/a").Return(errors.New("path not tracked"))

	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\n"))

	require.ErrorIs(t, err, domain.ErrCommitFailed)
	assert.NoFileExists(t, filepath.Join(root, "1", "a"))
	assert.Equal(t, before, treeHash(t, root))
}

func TestRunCancelledBetweenStageAndCommit(t *testing.T) {
	eng, repo, root := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	repo.EXPECT().Stage("1/a").DoAndReturn(func(string) error {
		cancel()
		return nil
	})
	repo.EXPECT().Remove("1/a").DoAndReturn(func(path string) error {
		return os.Remove(filepath.Join(root, filepath.FromSlash(path)))
	})

	err := eng.Run(ctx, writeMutation(root, "1/a", "one\n"))

	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(root, "1", "a"))
}

func TestRunSyncFailureKeepsLocalCommit(t *testing.T) {
	eng, repo, root := newEngine(t)

	repo.EXPECT().Stage("1/a").Return(nil)
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).Return("c0ffee", nil)
	repo.EXPECT().HasRemote().Return(true)
	repo.EXPECT().Push(gomock.Any()).Return(errors.New("connection refused"))

	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\n"))

	require.ErrorIs(t, err, domain.ErrSyncFailed)
	assert.NotErrorIs(t, err, domain.ErrCommitFailed)
	content, readErr := os.ReadFile(filepath.Join(root, "1", "a"))
	require.NoError(t, readErr)
	assert.Equal(t, "one\n", string(content), "sync failure must not roll back the committed change")
}

func TestSyncRetriesTransientPushFailures(t *testing.T) {
	eng, repo, _ := newEngine(t)
	eng.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	}

	gomock.InOrder(
		repo.EXPECT().Push(gomock.Any()).Return(errors.New("connection refused")).Times(2),
		repo.EXPECT().Push(gomock.Any()).Return(nil),
	)

	require.NoError(t, eng.Sync(context.Background()))
}

func TestRunReleasesLockAfterFailure(t *testing.T) {
	eng, repo, root := newEngine(t)

	repo.EXPECT().Stage("1/a").Return(nil).Times(2)
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).Return("", errors.New("transient")).Times(1)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "1", "a"), []byte("one\n"), 0o644))

	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\ntwo\n"))
	require.ErrorIs(t, err, domain.ErrCommitFailed)

	repo.EXPECT().Stage("1/a").Return(nil)
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).Return("c0ffee", nil)
	repo.EXPECT().HasRemote().Return(false)

	require.NoError(t, eng.Run(context.Background(), writeMutation(root, "1/a", "one\ntwo\n")))
}

func TestRunReturnsLockerErrorUnwrapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	locker := mocks.NewMockLocker(ctrl)
	log := mocks.NewMockLogger(ctrl)
	root := t.TempDir()

	locker.EXPECT().Acquire(gomock.Any()).Return(nil, domain.ErrLockTimeout)

	eng := tx.New(root, repo, locker, log)
	err := eng.Run(context.Background(), writeMutation(root, "1/a", "one\n"))

	require.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.NoFileExists(t, filepath.Join(root, "1", "a"),
		"nothing may be applied without the lock")
}

func TestRunSerialisesConcurrentMutations(t *testing.T) {
	eng, repo, root := newEngine(t)

	var active, maxActive int
	repo.EXPECT().Stage(gomock.Any()).Return(nil).AnyTimes()
	repo.EXPECT().Commit(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (string, error) {
		return "c0ffee", nil
	}).AnyTimes()
	repo.EXPECT().HasRemote().Return(false).AnyTimes()

	var mu sync.Mutex
	track := func(delta int) {
		mu.Lock()
		active += delta
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
	}

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		name := string(rune('a' + i))
		go func() {
			done <- eng.Run(context.Background(), tx.Mutation{
				Message: "updating crate `" + name + "`",
				Paths:   []string{"1/" + name},
				Apply: func(context.Context) error {
					track(1)
					defer track(-1)
					time.Sleep(10 * time.Millisecond)
					abs := filepath.Join(root, "1", name)
					if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
						return err
					}
					return os.WriteFile(abs, []byte(name+"\n"), 0o644)
				},
			})
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, 1, maxActive, "mutations must hold the lock exclusively")

	entries, err := os.ReadDir(filepath.Join(root, "1"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, names)
}
