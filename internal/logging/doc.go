// Package logging assembles the structured slog loggers used across spool.
//
// It centralizes level and output plumbing so every component emits log
// lines with the same shape: console or JSON format selected by config, with
// an optional log-file tee under the configured log directory. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
