// Package review contains the orchestration engine that evaluates documents
// against checklist items with an LLM.
//
// Checklist items are partitioned into bounded categories (batcher.go). Each
// category is submitted as one completion call and resubmitted, scoped to the
// missing items only, until the model has answered every item.
//
// When the completion service reports that a document exceeded its context
// window (classify.go), the split controller (split.go) re-plans the whole
// document into one more overlapping chunk than before (planner.go) and
// resubmits every chunk, up to a bounded number of escalations.
//
// Independent work fans out through RunAll (fanout.go), a bounded errgroup
// pool that preserves result order and cancels everything on the first
// failure.
//
// In small mode all documents are reviewed together. In large mode every
// document is reviewed on its own and the per-document comments are merged
// by a consolidation pass (consolidate.go) whose call count depends on the
// number of categories, not documents.
package review
