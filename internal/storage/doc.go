// Package storage persists schedule definitions.
//
// It currently supports:
//   - Schedule CRUD (file or sqlite backend)
//   - Audit log appends (schedule mutations)
package storage
