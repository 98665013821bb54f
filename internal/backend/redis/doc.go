// Package redis implements the work-item backend on a Redis server.
//
// Each queue is a pair of lists: claimable ids in FIFO order and currently
// claimed ids. A claim is a single LMOVE from one list to the other executed
// inside a server-side script together with the item hash update, so two
// workers can never take the same id. Item metadata lives in one hash per
// item and attachments in one hash per item, inline as base64 below the
// configured threshold and as filesystem path references above it.
//
// Resolve and the orphan sweep run as scripts that re-check the claimed
// state before acting, which makes the resolve/recover race lose cleanly on
// one side. The blocking claim variant uses BLMOVE and finishes the hash
// update in a follow-up script that detects a concurrent sweep.
package redis
