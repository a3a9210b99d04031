// Package store persists review runs: the documents each run saw, the
// per-document partial results and the final evaluations.
//
// SQLite is the durable backend (modernc.org/sqlite, no cgo). Memory keeps
// everything in process and backs tests and one-off runs. Both implement
// review.Store so the engine writes through them directly.
package store
