// Package config loads and validates engine configuration.
//
// Configuration is resolved once at startup: repository defaults, then an
// optional TOML file, then SPOOL_* environment variables. The resulting
// Config is passed by reference into the engine and backends; nothing reads
// ambient state at call time, which keeps the facade trivially testable with
// throwaway directories.
package config
