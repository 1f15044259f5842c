package dag

import (
	"context"
	"sync"
	"sync/atomic"
)

// execState is the per-task synchronization primitive: exactly one is
// allocated per task by the engine at init time. It holds the task's
// final Output behind a mutex (single-writer, many-reader) and a
// counting semaphore that starts at zero permits and is released, once,
// with permits equal to the task's out-degree - letting each successor
// acquire exactly one permit without coordinating with its siblings.
//
// Grounded on the original ExecState (AtomicBool + Mutex<Output> +
// tokio::sync::Semaphore). A buffered channel of capacity out-degree is
// the idiomatic Go counting semaphore for this shape: unlike
// golang.org/x/sync/semaphore.Weighted (built for the
// acquire-then-release resource-holding pattern), this primitive is
// released exactly once, from zero, with no matching prior acquire -
// which is precisely what a channel send/receive pair models.
type execState struct {
	success atomic.Bool

	mu     sync.Mutex
	output Output

	// ready holds one token per permit; release sends n tokens once,
	// wait receives (and discards) exactly one per call.
	ready    chan struct{}
	released atomic.Bool
}

// newExecState allocates a fresh execState. out is the task's
// out-degree, used to size the semaphore's capacity.
func newExecState(out int) *execState {
	cap := out
	if cap < 1 {
		cap = 1
	}
	return &execState{
		output: EmptyOutput(),
		ready:  make(chan struct{}, cap),
	}
}

// setOutput stores the task's final Output and records whether the
// action succeeded (any Produced output, with or without a value). Must
// be called at most once, strictly before
// the first release.
func (s *execState) setOutput(out Output) {
	s.mu.Lock()
	s.output = out
	s.mu.Unlock()
	s.success.Store(!out.IsError())
}

// getOutput returns the Content the task produced, if any. A cancelled,
// failed, or empty-producing predecessor all report (Content{}, false)
// here - the spec deliberately conflates those cases for successors.
func (s *execState) getOutput() (Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.Content()
}

// getFullOutput returns the complete tagged Output (a cheap, deep-shared
// clone since Content itself is immutable).
func (s *execState) getFullOutput() Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// release adds n permits to the ready signal. Only the scheduler calls
// this, and at most once per normal completion plus, on the cancellation
// path, once more from handleError - guarded so a double release never
// exceeds the semaphore's capacity.
func (s *execState) release(n int) {
	if n < 1 {
		n = 1
	}
	if s.released.Swap(true) {
		return
	}
	for i := 0; i < n; i++ {
		s.ready <- struct{}{}
	}
}

// wait blocks until one permit is available, consuming it. It returns
// ctx.Err() if ctx is cancelled first.
func (s *execState) wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// succeeded reports whether the task's action returned Produced.
func (s *execState) succeeded() bool {
	return s.success.Load()
}
