package crateindex

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rust-bucket/crate-index/internal/adapters/lock"
	"github.com/rust-bucket/crate-index/pkg/record"
	"go.trai.ch/zerr"
)

// loadNames walks the working tree and rebuilds the in-memory crate name set.
// Package files sit at the sharded leaf paths; everything hidden, plus the
// config and lock files, is skipped.
func (ix *Index) loadNames(ctx context.Context) error {
	names := make(map[string]string)

	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != ix.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || name == ConfigFileName || name == lock.FileName {
			return nil
		}

		names[record.CanonicalName(name)] = name
		return nil
	})
	if err != nil {
		return zerr.Wrap(err, "failed to walk index tree")
	}

	ix.mu.Lock()
	ix.names = names
	ix.mu.Unlock()
	return nil
}
