// Package cache provides SQLite-backed reuse of fragment evaluation
// results across pretex runs.
//
// Re-running every CUE fragment on each compile is wasteful when the
// template's code has not changed. The cache stores, per document, the
// ordered fragment outputs keyed by a content hash of the fragment code
// plus template arguments, together with the modification times of
// declared file dependencies.
//
// A cached entry is reused only when the key matches AND every recorded
// dependency is unchanged on disk. Anything else is a miss and the
// fragments are re-evaluated. Cache failures are never fatal to a
// compile; callers degrade to evaluation.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: parallel document builds share one database
//   - foreign_keys=ON: outputs and deps cascade with their document
package cache
