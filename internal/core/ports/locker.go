package ports

import "context"

// Locker serialises mutations against one working tree. Implementations must
// guard both against goroutines sharing the index handle and against other
// processes sharing the root path.
//
//go:generate go run go.uber.org/mock/mockgen -source=locker.go -destination=mocks/mock_locker.go -package=mocks
type Locker interface {
	// Acquire blocks until exclusive access is granted, the context is
	// cancelled, or the lock timeout elapses. The returned release
	// function must be called on every exit path.
	Acquire(ctx context.Context) (release func(), err error)
}
