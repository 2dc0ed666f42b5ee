// Package crateindex manages a crate registry index: a version-controlled,
// append-mostly database mapping a crate name to its published versions,
// backed by a git repository on disk. Every mutation is an atomic,
// recoverable transaction against that repository.
package crateindex

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rust-bucket/crate-index/internal/adapters/gitrepo"
	"github.com/rust-bucket/crate-index/internal/adapters/indexfile"
	"github.com/rust-bucket/crate-index/internal/adapters/lock"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/internal/core/ports"
	"github.com/rust-bucket/crate-index/internal/engine/tx"
	"github.com/rust-bucket/crate-index/pkg/record"
	"go.trai.ch/zerr"
)

// Error kinds returned by Index operations, re-exported so callers can
// discriminate with errors.Is without importing internal packages.
var (
	ErrInvalidName       = domain.ErrInvalidName
	ErrInvalidVersion    = domain.ErrInvalidVersion
	ErrInvalidChecksum   = domain.ErrInvalidChecksum
	ErrInvalidDependency = domain.ErrInvalidDependency
	ErrDuplicateVersion  = domain.ErrDuplicateVersion
	ErrVersionNotFound   = domain.ErrVersionNotFound
	ErrCrateNotFound     = domain.ErrCrateNotFound
	ErrLockTimeout       = domain.ErrLockTimeout
	ErrStageFailed       = domain.ErrStageFailed
	ErrCommitFailed      = domain.ErrCommitFailed
	ErrSyncFailed        = domain.ErrSyncFailed
	ErrCorruptIndex      = domain.ErrCorruptIndex
	ErrAlreadyExists     = domain.ErrAlreadyExists
	ErrNotFound          = domain.ErrNotFound
)

// Index is a handle on one crate registry index. It owns the exclusive lock
// and the repository connection; all operations go through the handle, there
// is no ambient state. An Index is safe for concurrent use.
type Index struct {
	root   string
	config Config
	store  *indexfile.Store
	engine *tx.Engine
	repo   ports.Repository
	log    ports.Logger

	mu sync.RWMutex
	// canonical name -> lowercased file name, loaded at Open and kept
	// current across inserts.
	names map[string]string
}

// Initialise creates a new index at root: a fresh git repository whose first
// revision records the root configuration object. It fails with
// ErrAlreadyExists if root already contains a repository. When only the push
// of the initial revision fails, the returned handle is usable alongside the
// ErrSyncFailed error; retry with Sync.
func Initialise(ctx context.Context, root, download string, opts ...Option) (*Index, error) {
	s := newSettings(opts)

	if _, err := url.Parse(download); err != nil || download == "" {
		return nil, zerr.With(zerr.New("invalid download template"), "download", download)
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, zerr.Wrap(err, "failed to create index root")
	}

	repo, err := gitrepo.Init(root, s.origin, s.identity)
	if err != nil {
		return nil, err
	}

	idx := newIndex(root, Config{
		DL:                download,
		API:               s.api,
		AllowedRegistries: s.allowedRegistries,
	}, repo, s)

	m := tx.Mutation{
		Message: "Initial commit",
		Paths:   []string{ConfigFileName},
		Apply: func(context.Context) error {
			return idx.config.write(root)
		},
	}
	if err := idx.engine.Run(ctx, m); err != nil {
		if errors.Is(err, domain.ErrSyncFailed) {
			// The repository and its first revision exist; only the
			// push is outstanding.
			return idx, err
		}
		return nil, err
	}
	return idx, nil
}

// Open attaches to an existing index at root. It fails with ErrNotFound when
// no repository is present and ErrCorruptIndex when the configuration object
// is missing or unparseable.
func Open(ctx context.Context, root string, opts ...Option) (*Index, error) {
	s := newSettings(opts)

	repo, err := gitrepo.Open(root, s.identity)
	if err != nil {
		return nil, err
	}

	config, err := readConfig(root)
	if err != nil {
		return nil, err
	}

	idx := newIndex(root, config, repo, s)
	if err := idx.loadNames(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func newIndex(root string, config Config, repo ports.Repository, s *settings) *Index {
	engine := tx.New(root, repo, lock.New(root, s.lockTimeout), s.logger)
	engine.NewBackOff = tx.BackOffPolicy(s.syncTimeout)

	return &Index{
		root:   root,
		config: config,
		store:  indexfile.NewStore(root),
		engine: engine,
		repo:   repo,
		log:    s.logger,
		names:  make(map[string]string),
	}
}

// Insert publishes one crate version. The record is validated before any
// filesystem mutation is attempted; a record with the same name and version
// as an existing one is rejected with ErrDuplicateVersion, never overwritten.
// An ErrSyncFailed result means the version is published locally and only
// the push is outstanding.
func (ix *Index) Insert(ctx context.Context, rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	shard := record.ShardPath(rec.Name)
	var registered bool
	m := tx.Mutation{
		Message: fmt.Sprintf("updating crate `%s#%s`", rec.Name, rec.Version),
		Paths:   []string{shard},
		Apply: func(context.Context) error {
			// Checked under the engine lock, so two concurrent inserts
			// of spelling variants cannot both pass.
			if err := ix.checkSimilarName(rec.Name); err != nil {
				return err
			}
			if err := ix.store.Insert(shard, rec); err != nil {
				return err
			}
			registered = ix.registerName(rec.Name)
			return nil
		},
	}

	err := ix.engine.Run(ctx, m)
	if err != nil && registered && !errors.Is(err, domain.ErrSyncFailed) {
		// The commit was rolled back, so the name set forgets the crate
		// again. A sync failure keeps the local commit, and the name
		// with it.
		ix.unregisterName(rec.Name)
	}
	return err
}

// registerName records the crate in the in-memory name set. It reports
// whether the canonical name was new.
func (ix *Index) registerName(name string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := record.CanonicalName(name)
	if _, ok := ix.names[key]; ok {
		return false
	}
	ix.names[key] = strings.ToLower(name)
	return true
}

func (ix *Index) unregisterName(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.names, record.CanonicalName(name))
}

// Yank marks a version as excluded from new dependency resolution without
// deleting its history. Yanking an already-yanked version succeeds as a
// committed no-op revision.
func (ix *Index) Yank(ctx context.Context, name, version string) error {
	return ix.patchYanked(ctx, name, version, true, "yanking")
}

// Unyank clears the yanked flag. Like Yank, it is idempotent and every call
// produces a revision.
func (ix *Index) Unyank(ctx context.Context, name, version string) error {
	return ix.patchYanked(ctx, name, version, false, "unyanking")
}

func (ix *Index) patchYanked(ctx context.Context, name, version string, yanked bool, verb string) error {
	if err := record.ValidateName(name); err != nil {
		return err
	}
	vers, err := semver.StrictNewVersion(version)
	if err != nil {
		return zerr.With(domain.With(domain.ErrInvalidVersion, "version", version), "cause", err.Error())
	}
	if !ix.Contains(name) {
		return domain.With(domain.ErrCrateNotFound, "crate", name)
	}

	shard := record.ShardPath(name)
	m := tx.Mutation{
		Message: fmt.Sprintf("%s crate `%s#%s`", verb, name, vers),
		Paths:   []string{shard},
		Apply: func(context.Context) error {
			return ix.store.Patch(shard, vers, func(r *record.Record) {
				r.Yanked = yanked
			})
		},
	}
	return ix.engine.Run(ctx, m)
}

// Versions returns every published record for the crate, in insertion order.
// Reads never take the exclusive lock.
func (ix *Index) Versions(ctx context.Context, name string) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}
	return ix.store.ReadAll(record.ShardPath(name))
}

// Version returns the record for one exact version of the crate, or
// ErrVersionNotFound.
func (ix *Index) Version(ctx context.Context, name, version string) (record.Record, error) {
	vers, err := semver.StrictNewVersion(version)
	if err != nil {
		return record.Record{}, zerr.With(domain.With(domain.ErrInvalidVersion,
			"version", version), "cause", err.Error())
	}

	records, err := ix.Versions(ctx, name)
	if err != nil {
		return record.Record{}, err
	}
	for _, rec := range records {
		if rec.SameVersion(vers) {
			return rec, nil
		}
	}
	return record.Record{}, zerr.With(domain.With(domain.ErrVersionNotFound,
		"crate", name), "version", version)
}

// Sync retries the push of already-committed revisions, after a mutation
// returned ErrSyncFailed. It is a no-op when no remote is configured.
func (ix *Index) Sync(ctx context.Context) error {
	if !ix.repo.HasRemote() {
		return nil
	}
	return ix.engine.Sync(ctx)
}

// Pull fast-forwards the working tree from the remote and reloads the crate
// name set. A divergent remote is surfaced, never merged.
func (ix *Index) Pull(ctx context.Context) error {
	if err := ix.repo.Pull(ctx); err != nil {
		return err
	}
	return ix.loadNames(ctx)
}

// Contains reports whether the index holds any version of the crate. The
// name set is held in memory, so this never touches the filesystem.
func (ix *Index) Contains(name string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.names[record.CanonicalName(name)]
	return ok
}

// Names returns the sorted, lowercased names of every crate in the index.
func (ix *Index) Names() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	names := make([]string, 0, len(ix.names))
	for _, name := range ix.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Root is the location of the index working tree on the filesystem.
func (ix *Index) Root() string { return ix.root }

// Download is the URL template for downloading .crate files.
func (ix *Index) Download() string { return ix.config.DL }

// API is the base URL of the registry API, empty if none was configured.
func (ix *Index) API() string { return ix.config.API }

// AllowedRegistries lists the registries crates in this index may depend on.
func (ix *Index) AllowedRegistries() []string { return ix.config.AllowedRegistries }

// DownloadURL substitutes the crate name and version into the download
// template.
func (ix *Index) DownloadURL(name, version string) string {
	u := strings.ReplaceAll(ix.config.DL, "{crate}", name)
	return strings.ReplaceAll(u, "{version}", version)
}

// checkSimilarName rejects a name whose canonical fold (lowercase, hyphens
// as underscores) collides with a different existing crate. Without this, two
// spellings would shadow each other during resolution.
func (ix *Index) checkSimilarName(name string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	existing, ok := ix.names[record.CanonicalName(name)]
	if ok && existing != strings.ToLower(name) {
		return zerr.With(zerr.With(domain.With(domain.ErrInvalidName, "name", name),
			"existing", existing), "reason", "name is too similar to existing crate")
	}
	return nil
}
