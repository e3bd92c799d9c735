// Package lock serializes runs against the same stack. Two concurrent runs
// would create a second tagged network and confuse teardown discovery.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned when another run holds the stack lock.
var ErrLocked = errors.New("stack is locked by another run")

// Locker acquires and releases an exclusive lock on a stack.
type Locker interface {
	// Lock acquires the lock for owner, typically the run ID.
	Lock(ctx context.Context, stack, owner string) error
	// Unlock releases a lock held by owner.
	Unlock(ctx context.Context, stack, owner string) error
}

// Noop never blocks. Used for dry runs.
type Noop struct{}

func (Noop) Lock(context.Context, string, string) error   { return nil }
func (Noop) Unlock(context.Context, string, string) error { return nil }
