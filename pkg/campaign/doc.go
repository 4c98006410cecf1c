// Package campaign provides the shared core of the EmailMakers workflow
// orchestration: campaign records, handoff artifacts, the error taxonomy and
// retryable filesystem storage.
//
// # Overview
//
// A campaign is one end-to-end email generation run. All of its working
// state lives in files under a single campaign root directory, which acts as
// a mailbox between pipeline stages: each stage reads its predecessor's
// handoff artifact, does its work, and leaves a new artifact for its
// successor. There is no central store; the filesystem is the single source
// of truth.
//
// # Core Concepts
//
// Campaign is the persisted record of a run: phase, status, completed
// stages and error log, stored as campaign-metadata.json on the root and
// always re-read from disk rather than cached in memory.
//
// HandoffArtifact is the immutable unit of inter-stage communication.
// Exactly one artifact exists per (from_stage, to_stage) boundary; a failed
// re-validation never mutates an artifact in place, it is fully regenerated.
//
// Error is the single concrete error type of the core. Its closed set of
// kinds (path resolution, file operation, handoff validation, data
// extraction, configuration) lets callers branch exhaustively on the
// failure class.
//
// # Storage Guarantees
//
// Every write that gates a stage transition goes through WriteAtomic
// (temp-file-then-rename), so a reader never observes a half-written
// artifact. Reads and writes retry transient failures under a bounded
// exponential backoff policy; callers only ever see a final success or a
// fatal failure.
//
// # Campaign Root Layout
//
//	campaign-metadata.json           campaign record
//	data/                            stage-specific intermediate outputs
//	templates/                       rendering inputs/outputs
//	docs/                            generated reports
//	<from>-to-<to>.json              one handoff artifact per stage boundary
//
// # Design Principles
//
//   - Type safety: all records have strong typing with validation methods
//   - Immutability: artifacts are never patched once validated
//   - Fail fast: a missing required field, file or setting is always an
//     explicit error, never a default
//   - Isolation: every campaign owns its root, so concurrent campaigns need
//     no locking
package campaign
