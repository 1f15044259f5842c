// Package dag implements a concurrent task-DAG execution engine: callers
// declare tasks with predecessor relations, the engine validates the
// resulting graph, orders it topologically, and runs the tasks
// concurrently while propagating typed outputs from predecessors to
// successors.
package dag
