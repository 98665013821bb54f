// Command spool is the command line interface to the work-item queue
// engine: enqueue and claim items, resolve them, manage payloads and
// attachments, sweep orphaned claims, and inspect queue state.
package main
