package crateindex

import (
	"time"

	"github.com/rust-bucket/crate-index/internal/adapters/gitrepo"
	"github.com/rust-bucket/crate-index/internal/adapters/logger"
	"github.com/rust-bucket/crate-index/internal/core/ports"
	"github.com/rust-bucket/crate-index/internal/engine/tx"
)

const defaultLockTimeout = 30 * time.Second

// Option configures an Index at Initialise or Open time.
type Option func(*settings)

type settings struct {
	api               string
	allowedRegistries []string
	origin            string
	identity          gitrepo.Identity
	lockTimeout       time.Duration
	syncTimeout       time.Duration
	logger            ports.Logger
}

func newSettings(opts []Option) *settings {
	s := &settings{
		lockTimeout: defaultLockTimeout,
		syncTimeout: tx.DefaultSyncTimeout,
		logger:      logger.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithAPI sets the base URL of the registry API recorded in config.json.
// Only meaningful at Initialise time.
func WithAPI(api string) Option {
	return func(s *settings) { s.api = api }
}

// WithAllowedRegistry adds a registry that crates in this index may have
// dependencies in. Repeat for multiple registries. Only meaningful at
// Initialise time.
func WithAllowedRegistry(registry string) Option {
	return func(s *settings) {
		s.allowedRegistries = append(s.allowedRegistries, registry)
	}
}

// WithCratesIO adds crates.io as an allowed registry. You will almost always
// want this, so it exists as a handy shortcut.
func WithCratesIO() Option {
	return func(s *settings) {
		s.allowedRegistries = append(s.allowedRegistries, CratesIOIndex)
	}
}

// WithOrigin configures a remote the index pushes every revision to.
func WithOrigin(url string) Option {
	return func(s *settings) { s.origin = url }
}

// WithIdentity sets the committer name and email recorded on revisions.
func WithIdentity(name, email string) Option {
	return func(s *settings) {
		s.identity = gitrepo.Identity{Name: name, Email: email}
	}
}

// WithLockTimeout bounds how long a mutation waits for exclusive access to
// the working tree. Zero means wait until the context is cancelled.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) { s.lockTimeout = d }
}

// WithSyncTimeout bounds the total time a mutation spends retrying the push
// to origin before reporting ErrSyncFailed. The local commit is kept either
// way.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *settings) { s.syncTimeout = d }
}

// WithLogger routes engine logging to the given logger. The default discards
// everything.
func WithLogger(l ports.Logger) Option {
	return func(s *settings) { s.logger = l }
}
