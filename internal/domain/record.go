package domain

import "time"

// RecordStatus describes how a key path was handled by the writer.
type RecordStatus string

const (
	// StatusMaterialized means a descriptor file was written for the key.
	StatusMaterialized RecordStatus = "materialized"

	// StatusAdopted means an existing descriptor file was found on disk at
	// startup and recorded without rewriting it.
	StatusAdopted RecordStatus = "adopted"
)

// Record is the canonical materialization state of one resolved key path.
//
// It is NOT tied to the filesystem or Redis; the state index is the primary
// owner and the Redis store persists records best-effort.
//
// A Record is uniquely identified by its Filename, the hyphenated transform
// of the key path. Two key paths that normalize to the same filename share
// one record; the first writer wins.
type Record struct {
	// Filename is the derived descriptor file name (without extension).
	Filename string

	// KeyPath is the slash-separated key the record was created for.
	KeyPath string

	// Status is the outcome of the last materialization decision.
	Status RecordStatus

	// MaterializedAt is when the descriptor file was first written.
	MaterializedAt time.Time

	// UpdatedAt is updated on any mutation of the record.
	UpdatedAt time.Time
}
