// Package idalloc mints task identifiers for dag.DefaultTask.
//
// ID allocation is deliberately a collaborator outside the DAG engine's
// core (spec.md §1): the engine only requires that ids be stable and
// unique within a DAG, not that they come from any particular source.
// This package exposes allocation as a service interface rather than
// package-global mutable state, so tests can construct an isolated
// allocator instead of resetting process-wide counters.
package idalloc

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Allocator mints the next task id.
type Allocator interface {
	Next() string
}

// Monotonic mints "1", "2", "3", ... ids, matching the counter-based id
// allocation used by the original engine's default task construction.
type Monotonic struct {
	counter atomic.Uint64
}

// NewMonotonic returns a fresh counter-based Allocator starting at 1.
func NewMonotonic() *Monotonic {
	return &Monotonic{}
}

// Next implements Allocator.
func (a *Monotonic) Next() string {
	return strconv.FormatUint(a.counter.Add(1), 10)
}

// Reset restarts the counter at zero. Intended for test isolation: call
// it between test cases instead of relying on shared process state.
func (a *Monotonic) Reset() {
	a.counter.Store(0)
}

// UUID mints globally-unique string ids via github.com/google/uuid,
// useful when tasks are constructed across independent batches or
// processes and a monotonic counter's uniqueness guarantee is too weak.
type UUID struct{}

// NewUUID returns an Allocator backed by random UUIDs.
func NewUUID() UUID { return UUID{} }

// Next implements Allocator.
func (UUID) Next() string { return uuid.NewString() }

// Default is used by dag.NewTask/dag.WithClosure when the caller passes
// a nil Allocator.
var Default Allocator = NewMonotonic()
