// Package workitem defines the work-item domain model shared by every
// storage backend.
//
// An Item moves through a small state machine: it is created Claimable,
// claimed by exactly one worker at a time, and resolved to a terminal
// Completed or Failed state. The orphan-recovery sweep provides the single
// backward edge, Claimed back to Claimable, for items abandoned by crashed
// workers. The package also owns the error taxonomy the engine and the CLI
// branch on; backends translate driver errors into these kinds so callers
// never see storage-specific failures.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when a backend needs a new transition, add it here first.
package workitem
