package dag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Engine orchestrates a single DAG run: task table, one execState per
// task, the dependency graph, the shared environment, the
// topologically-sorted execution sequence, and the process-local
// "continue" flag that drives both fail-fast cancellation and restart
// refusal (spec.md §4.5).
//
// Grounded on ai/agents/orchestrator/{dag_scheduler,executor}.go's
// scheduling loop, generalized from a string-keyed LLM task result to
// the spec's typed Value-Box Output/Input model, and on the original
// engine's Dag struct (tasks, rely_graph, execute_states, env,
// can_continue, exe_sequence).
type Engine struct {
	tasks     []Task
	taskByID  map[string]Task
	env       *Env
	keepGoing bool
	metrics   *Metrics

	states      map[string]*execState
	g           *graph
	exeSequence []string

	// continueFlag starts true; it is driven false either by handleError
	// (fail-fast cancellation, mid-run) or unconditionally once a run
	// completes (restart refusal). Either transition is terminal.
	continueFlag atomic.Bool
}

// NewEngine returns an unconfigured Engine. Prefer WithTasks, WithYAML,
// or WithConfigFileAndParser.
func NewEngine() *Engine {
	e := &Engine{taskByID: make(map[string]Task)}
	e.continueFlag.Store(true)
	return e
}

// WithTasks builds an Engine from an explicit task list.
func WithTasks(tasks []Task) *Engine {
	e := NewEngine()
	for _, t := range tasks {
		e.tasks = append(e.tasks, t)
		e.taskByID[t.ID()] = t
	}
	return e
}

// WithConfigFileAndParser builds an Engine from a configuration file
// parsed by the caller-supplied Parser. Any parser failure is wrapped as
// ErrParseError.
func WithConfigFileAndParser(path string, vars map[string]string, parser Parser) (*Engine, error) {
	tasks, err := parser.ParseTasks(path, vars)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return WithTasks(tasks), nil
}

// WithYAML builds an Engine from a configuration file using the
// registered built-in YAML parser (see RegisterYAMLParser). Callers must
// blank-import the yamlparser package for this to succeed, mirroring the
// database/sql driver-registration idiom.
func WithYAML(path string, vars map[string]string) (*Engine, error) {
	if yamlParserFactory == nil {
		return nil, wrapParseError(errors.New("no YAML parser registered: blank-import a package that calls dag.RegisterYAMLParser"))
	}
	return WithConfigFileAndParser(path, vars, yamlParserFactory(vars))
}

// SetEnv installs the shared environment made available to every
// action. Builder-style: returns the same Engine.
func (e *Engine) SetEnv(env *Env) *Engine {
	if env == nil {
		env = emptyEnv()
	}
	e.env = env
	return e
}

// KeepGoing enables keep-going mode: a task failure no longer flips the
// global continue flag, so independent tasks still run to completion.
// Builder-style: returns the same Engine.
func (e *Engine) KeepGoing() *Engine {
	e.keepGoing = true
	return e
}

// WithMetrics attaches a Metrics exporter the engine updates as it runs.
// Builder-style: returns the same Engine.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// initialize runs the one-time construction steps: allocate execution
// states, build the dependency graph, and compute the topological
// execution sequence. It is idempotent to call again (e.g. after a
// failed initialize) since it only reads e.tasks.
func (e *Engine) initialize() error {
	if e.env == nil {
		e.env = emptyEnv()
	}

	g := newGraph()
	g.setSize(len(e.tasks))
	for _, t := range e.tasks {
		// Re-adding an id already seen (duplicate task ids collapse to
		// the last one in taskByID) is tolerated silently, matching the
		// original HashMap-keyed task table.
		if _, ok := g.indexOf(t.ID()); ok {
			continue
		}
		if err := g.addNode(t.ID()); err != nil {
			return errors.WithStack(err)
		}
	}

	for _, t := range e.tasks {
		idx, ok := g.indexOf(t.ID())
		if !ok {
			continue // not reached: every task id was added as a node above
		}
		for _, predID := range t.Predecessors() {
			predIdx, ok := g.indexOf(predID)
			if !ok {
				return newRelyTaskIllegal(t.Name())
			}
			g.addEdge(predIdx, idx)
		}
	}

	order, ok := g.topoSort()
	if !ok {
		return errors.WithStack(ErrLoopGraph)
	}
	if len(order) == 0 {
		return errors.WithStack(ErrEmptyJob)
	}

	states := make(map[string]*execState, len(order))
	seq := make([]string, len(order))
	for i, idx := range order {
		id := g.idOf(idx)
		seq[i] = id
		states[id] = newExecState(g.outDegreeByIndex(idx))
	}

	e.g = g
	e.exeSequence = seq
	e.states = states
	return nil
}

// Start runs the DAG to completion. It returns (true, nil) if no task
// failed, (false, nil) if any task returned an Error output or panicked,
// and (false, err) if initialization failed. A task skipped by
// cancellation (fail-fast or ctx) does not count as a failure. Once a
// call has got past initialization, every later call returns (false, nil)
// without running anything; a call that failed initialization leaves the
// Engine startable.
func (e *Engine) Start(ctx context.Context) (bool, error) {
	if !e.continueFlag.Load() {
		return false, nil
	}

	if err := e.initialize(); err != nil {
		return false, err
	}

	if e.metrics != nil {
		e.metrics.runsStarted.Inc()
	}

	slog.Info("dag: starting run", "tasks", len(e.exeSequence), "keep_going", e.keepGoing)

	ok := e.run(ctx)
	e.continueFlag.Store(false)

	if e.metrics != nil {
		if ok {
			e.metrics.runsSucceeded.Inc()
		} else {
			e.metrics.runsFailed.Inc()
		}
	}

	slog.Info("dag: run finished", "success", ok)
	return ok, nil
}

// unitResult is what a single task goroutine reports back to run.
type unitResult struct {
	ok       bool
	panicV   any
	didPanic bool
}

// run spawns one goroutine per task, joins them strictly in
// execution-sequence order, and invokes handleError for each that
// failed (fail-fast mode only - see runUnit on keep-going).
func (e *Engine) run(ctx context.Context) bool {
	gate := e.admissionGate()

	done := make([]chan unitResult, len(e.exeSequence))
	for i := range done {
		done[i] = make(chan unitResult, 1)
	}

	for i, id := range e.exeSequence {
		go func(i int, id string) {
			done[i] <- e.runUnit(ctx, id, gate)
		}(i, id)
	}

	allOK := true
	for i, id := range e.exeSequence {
		r := <-done[i]
		if r.didPanic {
			slog.Error("dag: task execution panicked", "task_id", id, "panic", r.panicV)
		}
		if !r.ok {
			slog.Warn("dag: task did not succeed", "task_id", id)
			allOK = false
			if !e.keepGoing {
				e.handleError(id)
			}
		}
	}
	return allOK
}

// runUnit executes exactly one task: it blocks on each predecessor's
// execState in declared order, observes the cancellation short-circuit,
// collects predecessor outputs into an Input, invokes the action, and
// stores its output. A recovered panic is reported as ErrInnerPanic-worthy
// (the caller logs it) without ever propagating past this goroutine.
//
// On failure (Error output or recovered panic), self-release happens only
// in keep-going mode. In fail-fast mode the failing unit's own permits are
// left unreleased here - releasing them immediately would let an
// already-waiting successor wake, read continueFlag (still true, since
// run's join loop has not yet observed this failure and called
// handleError) and run its action on a failed predecessor. Instead
// handleError flips continueFlag to false first and only then releases
// the cascade, so no successor can ever observe continueFlag==true past a
// failed predecessor. Matches the original engine's Err branch, which
// likewise withholds set_output/add_permits from the failing task itself
// and leaves the release to handle_error.
func (e *Engine) runUnit(ctx context.Context, id string, gate *semaphore.Weighted) (res unitResult) {
	task := e.taskByID[id]
	state := e.states[id]
	outDegree := e.g.outDegree(id)

	defer func() {
		if r := recover(); r != nil {
			state.setOutput(ErrorOutput(fmt.Sprintf("panic: %v", r)))
			if e.keepGoing {
				state.release(outDegree)
			}
			res = unitResult{ok: false, didPanic: true, panicV: r}
		}
	}()

	var inputs []Content
	for _, predID := range task.Predecessors() {
		predState := e.states[predID]
		if predState == nil {
			continue
		}
		if err := predState.wait(ctx); err != nil {
			return unitResult{ok: true}
		}
		if !e.continueFlag.Load() && !e.keepGoing {
			return unitResult{ok: true}
		}
		if c, ok := predState.getOutput(); ok {
			inputs = append(inputs, c)
		}
	}

	if gate != nil {
		if e.metrics != nil {
			e.metrics.queueDepth.Inc()
		}
		if err := gate.Acquire(ctx, 1); err != nil {
			if e.metrics != nil {
				e.metrics.queueDepth.Dec()
			}
			return unitResult{ok: true}
		}
		if e.metrics != nil {
			e.metrics.queueDepth.Dec()
		}
		defer gate.Release(1)
	}

	if e.metrics != nil {
		e.metrics.activeTasks.Inc()
		defer e.metrics.activeTasks.Dec()
	}

	slog.Debug("dag: task start", "task_id", id, "name", task.Name())
	out := task.Action().Run(ctx, NewInput(inputs), e.env)

	state.setOutput(out)

	if out.IsError() {
		if e.keepGoing {
			state.release(outDegree)
		}
		slog.Warn("dag: task failed", "task_id", id, "name", task.Name(), "error", out.ErrorMessage())
		if e.metrics != nil {
			e.metrics.tasksFailed.Inc()
		}
		return unitResult{ok: false}
	}

	state.release(outDegree)
	slog.Debug("dag: task complete", "task_id", id, "name", task.Name())
	return unitResult{ok: true}
}

// handleError implements the fail-fast cancellation path: it flips the
// continue flag and releases permits for every task at or after id's
// position in the execution sequence, so any waiter blocked on one of
// those states unblocks promptly and observes continue=false at its
// next check. Surplus releases on states that later complete normally
// on their own are harmless - release is idempotent per execState.
func (e *Engine) handleError(id string) {
	e.continueFlag.Store(false)

	idx := -1
	for i, tid := range e.exeSequence {
		if tid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i := idx; i < len(e.exeSequence); i++ {
		tid := e.exeSequence[i]
		e.states[tid].release(e.g.outDegree(tid))
	}
}

// admissionGate returns a weighted semaphore sized by the
// TOKIO_WORKER_THREADS hint (minimum 1), or nil if unset - in which case
// task actions run with no additional admission limit beyond Go's own
// goroutine scheduling. This bounds how many task actions run
// concurrently, the closest faithful reading of a "worker thread hint"
// for a goroutine-per-task scheduler (spec.md §5). Unlike execState's
// release-without-acquire semaphore (see state.go), this one is always
// acquired before it is released, which is exactly what
// golang.org/x/sync/semaphore.Weighted is built for.
func (e *Engine) admissionGate() *semaphore.Weighted {
	raw := os.Getenv("TOKIO_WORKER_THREADS")
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}

// GetResult returns the unwrapped value of the last task in the
// execution sequence, typed at T. It reports false if the sequence is
// empty or the last task's output is not Produced(some T).
func GetResult[T any](e *Engine) (T, bool) {
	var zero T
	if len(e.exeSequence) == 0 {
		return zero, false
	}
	last := e.exeSequence[len(e.exeSequence)-1]
	state := e.states[last]
	c, ok := state.getOutput()
	if !ok {
		return zero, false
	}
	return Unwrap[T](c)
}

// GetResults returns one entry per task id in the task set: the pointer
// is non-nil when the task produced a Value Box convertible to T, and
// nil when the task was cancelled, failed, produced an empty output, or
// its output does not convert to T.
func GetResults[T any](e *Engine) map[string]*T {
	out := make(map[string]*T, len(e.taskByID))
	for id, state := range e.states {
		out[id] = nil
		c, ok := state.getOutput()
		if !ok {
			continue
		}
		if v, ok := Unwrap[T](c); ok {
			vv := v
			out[id] = &vv
		}
	}
	for id := range e.taskByID {
		if _, ok := out[id]; !ok {
			out[id] = nil
		}
	}
	return out
}
