// Package lock wraps the named-mutex service that serializes structural
// mutation and diff computation per workspace. The lock is advisory over
// application-level operations: it does not extend the store's own
// per-mutation atomicity, and different names never contend, so separate
// workspaces progress fully in parallel.
package lock

import "sync"

// NamePrefix is prepended to the workspace id to form its lock name.
const NamePrefix = "WORKSPACE_"

// Name returns the lock name guarding a workspace.
func Name(workspaceID string) string {
	return NamePrefix + workspaceID
}

// Repository acquires a named lock, runs fn, and releases the lock on
// every exit path including panics. Acquisition blocks with no built-in
// timeout; callers needing one must apply their own. Reentrancy is not
// assumed: locking the same name from within fn deadlocks.
type Repository interface {
	Lock(name string, fn func() error) error
}

// Do runs a value-returning critical section under the named lock.
func Do[T any](r Repository, name string, fn func() (T, error)) (T, error) {
	var out T
	err := r.Lock(name, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// LocalRepository is an in-process Repository backed by one mutex per
// name. It serves tests and single-node deployments; multi-node
// deployments substitute a distributed lock service behind the same
// interface.
type LocalRepository struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalRepository returns an empty in-process lock repository.
func NewLocalRepository() *LocalRepository {
	return &LocalRepository{locks: make(map[string]*sync.Mutex)}
}

func (r *LocalRepository) Lock(name string, fn func() error) error {
	m := r.mutex(name)
	m.Lock()
	defer m.Unlock()
	return fn()
}

func (r *LocalRepository) mutex(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[name]
	if !ok {
		m = &sync.Mutex{}
		r.locks[name] = m
	}
	return m
}
