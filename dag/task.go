package dag

import (
	"context"

	"github.com/hrygo/taskdag/idalloc"
)

// Action is the behavior a task performs. It receives the task's ordered
// predecessor inputs and the DAG's shared environment and must never
// panic across the engine boundary for predictable failures - those
// belong in the returned Error/ErrorWithExitCode Output instead.
type Action interface {
	Run(ctx context.Context, in Input, env *Env) Output
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, in Input, env *Env) Output

// Run implements Action.
func (f ActionFunc) Run(ctx context.Context, in Input, env *Env) Output {
	return f(ctx, in, env)
}

// Task is the contract a unit of work must satisfy to be scheduled by
// the engine: a stable id unique within the DAG, a display name, its
// declared predecessor ids, and the Action to run once those
// predecessors have produced their outputs.
type Task interface {
	ID() string
	Name() string
	Predecessors() []string
	Action() Action
}

// DefaultTask is a ready-to-use Task implementation for programmatic DAG
// construction, mirroring the builder shape used throughout the
// original test suite (with_action/with_closure/set_predecessors).
type DefaultTask struct {
	id           string
	name         string
	predecessors []string
	action       Action
}

// NewTask creates a DefaultTask named name, running action, with an id
// minted by alloc. Pass a nil alloc to use idalloc.Default.
func NewTask(alloc idalloc.Allocator, name string, action Action) *DefaultTask {
	if alloc == nil {
		alloc = idalloc.Default
	}
	return &DefaultTask{
		id:     alloc.Next(),
		name:   name,
		action: action,
	}
}

// WithClosure creates a DefaultTask running a plain function as its
// Action.
func WithClosure(alloc idalloc.Allocator, name string, fn func(ctx context.Context, in Input, env *Env) Output) *DefaultTask {
	return NewTask(alloc, name, ActionFunc(fn))
}

// SetPredecessors records the ids this task depends on, in declared
// order. It overwrites any previously set predecessor list.
func (t *DefaultTask) SetPredecessors(ids ...string) *DefaultTask {
	t.predecessors = append([]string(nil), ids...)
	return t
}

// DependsOn appends the given tasks' ids, in the order passed, to this
// task's predecessor list - a convenience mirroring set_predecessors(&[..]).
func (t *DefaultTask) DependsOn(tasks ...Task) *DefaultTask {
	for _, dep := range tasks {
		t.predecessors = append(t.predecessors, dep.ID())
	}
	return t
}

// ID implements Task.
func (t *DefaultTask) ID() string { return t.id }

// Name implements Task.
func (t *DefaultTask) Name() string { return t.name }

// Predecessors implements Task.
func (t *DefaultTask) Predecessors() []string { return t.predecessors }

// Action implements Task.
func (t *DefaultTask) Action() Action { return t.action }
