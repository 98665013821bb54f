// Package backend defines the storage contract every queue backend
// implements and the static registry the engine resolves backends from.
//
// A Backend owns the durable work-item records, the payload and attachment
// stores, and the atomic claim/resolve/recover primitives for one storage
// technology. The three implementations (sqlite, redis, mongo) register
// themselves via init so the engine selects one by configured identifier
// without runtime reflection.
package backend
