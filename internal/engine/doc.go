// Package engine is the facade workers and the CLI talk to.
//
// It composes a Backend with the configured queue name, wraps transient
// backend failures in bounded retries, and logs one line per operation. It
// owns no queue state of its own.
package engine
