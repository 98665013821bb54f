// Package mongo implements the work-item backend on a MongoDB database.
//
// Items live in a single work_items collection indexed by queue name, state,
// and sequence; a claim is one FindOneAndUpdate whose filter re-checks the
// claimable state, so the selection and the transition are a single
// server-side step. Per-queue sequences come from atomic $inc upserts on a
// counters collection. Attachments are indexed in work_item_files with the
// inline tier embedded as binary and the large tier stored in a GridFS
// bucket referenced by object id.
package mongo
