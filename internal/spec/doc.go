// Package spec defines the domain model for the loom pipeline.
//
// The pipeline turns declarative build intents into validated mutations
// against a versioned application-specification store:
//
//   - Operation: a batch of raw step descriptors submitted under one intent
//   - Step: one atomic, independently-tracked unit of an Operation
//   - SpecEntry: one keyed document of desired application state
//   - VersionSnapshot: a full capture of the store after a successful Operation
//
// Raw descriptors arriving from intent producers are duck-typed and
// alias-heavy. They are normalized exactly once, at the ingestion
// boundary, into the discriminated payload variants in payload.go.
// Handlers downstream never branch on alias field names.
package spec
