package state

import (
	"sync"
	"time"

	"github.com/satyamsundaram01/confsync/internal/domain"
)

// Index is the in-memory materialization state, keyed by derived descriptor
// filename. It is the primary owner of the skip-if-present decision; the
// Redis store only persists records best-effort.
type Index struct {
	mu        sync.RWMutex
	records   map[string]*domain.Record // Filename -> Record
	lastCycle time.Time                 // Timestamp of last completed sync cycle
}

// NewIndex creates an empty materialization index
func NewIndex() *Index {
	return &Index{
		records: make(map[string]*domain.Record),
	}
}

// Get retrieves a record by filename
func (idx *Index) Get(filename string) (*domain.Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	record, ok := idx.records[filename]
	return record, ok
}

// Put adds or updates a single record
func (idx *Index) Put(record *domain.Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	record.UpdatedAt = time.Now()
	idx.records[record.Filename] = record
}

// Delete removes a record from the index
func (idx *Index) Delete(filename string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.records, filename)
}

// All returns every record currently tracked
func (idx *Index) All() []*domain.Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	records := make([]*domain.Record, 0, len(idx.records))
	for _, record := range idx.records {
		records = append(records, record)
	}
	return records
}

// Count returns the number of tracked records
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.records)
}

// Replace swaps the whole record set, used when warming up from Redis
func (idx *Index) Replace(records []*domain.Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records = make(map[string]*domain.Record, len(records))
	for _, record := range records {
		idx.records[record.Filename] = record
	}
}

// Reset drops every record so the next cycle re-materializes from scratch.
// This is the forced-refresh path; descriptor files on disk are rewritten.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records = make(map[string]*domain.Record)
}

// MarkCycle records the completion time of a sync cycle
func (idx *Index) MarkCycle(at time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.lastCycle = at
}

// LastCycle returns when the last sync cycle completed (zero if never)
func (idx *Index) LastCycle() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastCycle
}
