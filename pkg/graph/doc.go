// Package graph implements the stack graph orchestrator: it plans a set of
// deployable units into a dependency DAG keyed by typed parameter references,
// then applies the graph upward (deploy) or downward (teardown) while
// propagating named outputs from producers into the resolved inputs of their
// dependents.
package graph
