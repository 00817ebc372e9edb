// Package storage persists the task registry.
//
// It currently supports:
//   - a single JSON file rewritten atomically (temp file + rename) on every change
//   - an optional SQLite database (build tag "sqlite")
package storage
