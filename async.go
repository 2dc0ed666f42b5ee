package crateindex

import (
	"context"

	"github.com/rust-bucket/crate-index/pkg/record"
)

// AsyncIndex offers the same operations as Index without blocking the
// caller: each method drives the one underlying engine on its own goroutine
// and delivers the result on a buffered channel. The transaction logic is
// never duplicated; this is a calling convention, not a second engine.
type AsyncIndex struct {
	idx *Index
}

// Go returns the non-blocking view of the index.
func (ix *Index) Go() *AsyncIndex {
	return &AsyncIndex{idx: ix}
}

// VersionsResult carries the outcome of an asynchronous read.
type VersionsResult struct {
	Records []record.Record
	Err     error
}

// Insert publishes a crate version in the background.
func (a *AsyncIndex) Insert(ctx context.Context, rec record.Record) <-chan error {
	return a.run(func() error { return a.idx.Insert(ctx, rec) })
}

// Yank marks a version as yanked in the background.
func (a *AsyncIndex) Yank(ctx context.Context, name, version string) <-chan error {
	return a.run(func() error { return a.idx.Yank(ctx, name, version) })
}

// Unyank clears the yanked flag in the background.
func (a *AsyncIndex) Unyank(ctx context.Context, name, version string) <-chan error {
	return a.run(func() error { return a.idx.Unyank(ctx, name, version) })
}

// Sync retries the remote push in the background.
func (a *AsyncIndex) Sync(ctx context.Context) <-chan error {
	return a.run(func() error { return a.idx.Sync(ctx) })
}

// Versions reads all records for a crate in the background.
func (a *AsyncIndex) Versions(ctx context.Context, name string) <-chan VersionsResult {
	out := make(chan VersionsResult, 1)
	go func() {
		records, err := a.idx.Versions(ctx, name)
		out <- VersionsResult{Records: records, Err: err}
	}()
	return out
}

func (a *AsyncIndex) run(op func() error) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- op()
	}()
	return out
}
