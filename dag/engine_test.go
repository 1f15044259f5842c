package dag_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/taskdag/dag"
	"github.com/hrygo/taskdag/idalloc"
)

// doubler returns an Action reading a single int predecessor value (or 1
// if it has none) and producing its double - the linear-chain fixture
// used by TestDAG_LinearExecution.
func doubler() dag.Action {
	return dag.ActionFunc(func(_ context.Context, in dag.Input, _ *dag.Env) dag.Output {
		seed := 1
		if vs := in.Values(); len(vs) > 0 {
			if v, ok := dag.Unwrap[int](vs[0]); ok {
				seed = v
			}
		}
		return dag.Produced(dag.NewContent(seed * 2))
	})
}

// Case 1: linear dependency (A -> B -> C), grounded on
// executor_dag_test.go's TestDAG_LinearExecution shape.
func TestDAG_LinearExecution(t *testing.T) {
	alloc := idalloc.NewMonotonic()

	a := dag.WithClosure(alloc, "a", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.Produced(dag.NewContent(3))
	})
	b := dag.NewTask(alloc, "b", doubler()).DependsOn(a)
	c := dag.NewTask(alloc, "c", doubler()).DependsOn(b)

	engine := dag.WithTasks([]dag.Task{a, b, c})

	ok, err := engine.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	got, present := dag.GetResult[int](engine)
	require.True(t, present)
	assert.Equal(t, 12, got) // 3 -> 6 -> 12
}

// sumTask mirrors the original's generate_task! macro: it sums self with
// base*predecessorValue for every int predecessor, reading base from the
// shared environment rather than a captured constant.
func sumTask(alloc idalloc.Allocator, name string, self int) *dag.DefaultTask {
	return dag.NewTask(alloc, name, dag.ActionFunc(func(_ context.Context, in dag.Input, env *dag.Env) dag.Output {
		base, _ := dag.EnvGet[int](env, "base")
		sum := self
		for _, c := range in.Values() {
			if v, ok := dag.Unwrap[int](c); ok {
				sum += v * base
			}
		}
		return dag.Produced(dag.NewContent(sum))
	}))
}

// buildDiamond replicates the seven-task topology shared by
// task_failed_execute and task_keep_going in the original test suite:
//
//	A -> B,C,D ; B,C -> E ; C,D -> F ; B,E,F -> G
//
// C panics (integer divide by zero) and D returns an explicit Error
// output, so both branches of task failure are exercised at once.
func buildDiamond(t *testing.T, alloc idalloc.Allocator) (tasks []dag.Task, byName map[string]dag.Task) {
	t.Helper()
	byName = make(map[string]dag.Task)

	a := sumTask(alloc, "Compute A", 1)
	b := sumTask(alloc, "Compute B", 2)
	c := dag.NewTask(alloc, "Compute C", dag.ActionFunc(func(_ context.Context, _ dag.Input, env *dag.Env) dag.Output {
		base, _ := dag.EnvGet[int](env, "base")
		divisor := 0
		return dag.Produced(dag.NewContent(base / divisor)) // panics: integer divide by zero
	}))
	d := dag.NewTask(alloc, "Compute D", dag.ActionFunc(func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.ErrorOutput("error")
	}))
	e := sumTask(alloc, "Compute E", 16)
	f := sumTask(alloc, "Compute F", 32)
	g := sumTask(alloc, "Compute G", 64)

	b.DependsOn(a)
	c.DependsOn(a)
	d.DependsOn(a)
	e.DependsOn(b, c)
	f.DependsOn(c, d)
	g.DependsOn(b, e, f)

	tasks = []dag.Task{a, b, c, d, e, f, g}
	byName["a"], byName["b"], byName["c"], byName["d"], byName["e"], byName["f"], byName["g"] =
		a, b, c, d, e, f, g
	return tasks, byName
}

// Case 2: diamond with a panicking task and an explicitly-failing task,
// fail-fast mode - grounded on task_failed_execute.
func TestDAG_DiamondFailFast(t *testing.T) {
	alloc := idalloc.NewMonotonic()
	tasks, byName := buildDiamond(t, alloc)

	engine := dag.WithTasks(tasks).SetEnv(dag.NewEnv(map[string]any{"base": 2}))

	ok, err := engine.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	results := dag.GetResults[int](engine)
	require.NotNil(t, results[byName["a"].ID()])
	assert.Equal(t, 1, *results[byName["a"].ID()])
	require.NotNil(t, results[byName["b"].ID()])
	assert.Equal(t, 4, *results[byName["b"].ID()])

	assert.Nil(t, results[byName["c"].ID()], "panicking task produces no value")
	assert.Nil(t, results[byName["d"].ID()], "failing task produces no value")
	assert.Nil(t, results[byName["e"].ID()], "cancelled by fail-fast before producing a value")
	assert.Nil(t, results[byName["f"].ID()], "cancelled by fail-fast before producing a value")
	assert.Nil(t, results[byName["g"].ID()], "cancelled by fail-fast before producing a value")
}

// Case 3: same topology plus independent siblings, keep-going mode -
// grounded on task_keep_going. Independent tasks complete even though
// the diamond itself fails.
func TestDAG_DiamondKeepGoing(t *testing.T) {
	alloc := idalloc.NewMonotonic()
	tasks, byName := buildDiamond(t, alloc)

	independents := []string{"h", "i", "j", "k", "l", "m"}
	for _, name := range independents {
		byName[name] = sumTask(alloc, "Compute "+name, 64)
		tasks = append(tasks, byName[name])
	}

	engine := dag.WithTasks(tasks).
		SetEnv(dag.NewEnv(map[string]any{"base": 2})).
		KeepGoing()

	ok, err := engine.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "overall result still reports the failure")

	results := dag.GetResults[int](engine)
	expect := map[string]int{
		"a": 1, "b": 4,
		"h": 64, "i": 64, "j": 64, "k": 64, "l": 64, "m": 64,
	}
	for name, want := range expect {
		id := byName[name].ID()
		require.NotNilf(t, results[id], "task %s should have a result", name)
		assert.Equalf(t, want, *results[id], "task %s", name)
	}
}

// Case 4: a three-task cycle (a after b, b after c, c after a) is
// rejected as ErrLoopGraph - grounded on task_loop_graph.
func TestDAG_ThreeTaskCycle(t *testing.T) {
	alloc := idalloc.NewMonotonic()

	a := dag.WithClosure(alloc, "a", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.EmptyOutput()
	})
	b := dag.WithClosure(alloc, "b", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.EmptyOutput()
	})
	c := dag.WithClosure(alloc, "c", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.EmptyOutput()
	})
	a.SetPredecessors(b.ID())
	b.SetPredecessors(c.ID())
	c.SetPredecessors(a.ID())

	engine := dag.WithTasks([]dag.Task{a, b, c})
	ok, err := engine.Start(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, dag.ErrLoopGraph)
}

// Case 5: no tasks at all is ErrEmptyJob - grounded on non_job.
func TestDAG_EmptyJob(t *testing.T) {
	engine := dag.WithTasks(nil)
	ok, err := engine.Start(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, dag.ErrEmptyJob)
}

// Case 6: calling Start twice never runs actions a second time.
func TestDAG_RestartRefusal(t *testing.T) {
	alloc := idalloc.NewMonotonic()
	var calls atomic.Int32

	a := dag.WithClosure(alloc, "a", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		calls.Add(1)
		return dag.EmptyOutput()
	})

	engine := dag.WithTasks([]dag.Task{a})

	ok1, err1 := engine.Start(context.Background())
	require.NoError(t, err1)
	assert.True(t, ok1)

	ok2, err2 := engine.Start(context.Background())
	require.NoError(t, err2)
	assert.False(t, ok2)

	assert.Equal(t, int32(1), calls.Load())
}

// A task declaring a predecessor id absent from the task set is
// rejected by Start's initialization, before any action runs, not left to
// deadlock at run time.
func TestDAG_UnknownPredecessor(t *testing.T) {
	alloc := idalloc.NewMonotonic()

	a := dag.WithClosure(alloc, "a", func(_ context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		return dag.EmptyOutput()
	})
	a.SetPredecessors("does-not-exist")

	engine := dag.WithTasks([]dag.Task{a})
	ok, err := engine.Start(context.Background())
	assert.False(t, ok)

	var relyErr *dag.RelyTaskIllegalError
	assert.ErrorAs(t, err, &relyErr)
}

// The context passed to Start reaches every action, so a long-running
// action can observe external cancellation and return promptly instead
// of blocking Start forever.
func TestDAG_ContextCancellation(t *testing.T) {
	alloc := idalloc.NewMonotonic()
	started := make(chan struct{})

	a := dag.NewTask(alloc, "a", dag.ActionFunc(func(ctx context.Context, _ dag.Input, _ *dag.Env) dag.Output {
		close(started)
		<-ctx.Done()
		return dag.EmptyOutput()
	}))

	engine := dag.WithTasks([]dag.Task{a})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := engine.Start(ctx)
		done <- result{ok, err}
	}()

	<-started
	cancel()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not return after context cancellation")
	}
}
