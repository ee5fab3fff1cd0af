package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/state"
	redisstore "github.com/satyamsundaram01/confsync/internal/store/redis"
)

// Pruner removes zero-byte descriptor files. A zero-byte descriptor means
// a key was declared but the upstream store returned no value; leaving it
// behind feeds the templating backend a dangling empty stanza.
//
// The pruner runs as step one of every sync cycle rather than on its own
// interval, so a pruned key can be re-materialized within the same cycle.
type Pruner struct {
	confdDir string
	index    *state.Index
	store    *redisstore.Store
	logger   logger.Logger
}

// NewPruner creates a pruner for the descriptor directory
func NewPruner(
	confdDir string,
	idx *state.Index,
	store *redisstore.Store,
	log logger.Logger,
) *Pruner {
	return &Pruner{
		confdDir: confdDir,
		index:    idx,
		store:    store,
		logger:   log,
	}
}

// Prune deletes every zero-byte descriptor and its tracking record.
// Non-empty descriptors are never touched.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(p.confdDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read descriptor dir: %w", err)
	}

	deletedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			p.logger.Warn("failed to stat descriptor",
				logger.String("file", entry.Name()),
				logger.Error(err))
			continue
		}
		if info.Size() != 0 {
			continue
		}

		path := filepath.Join(p.confdDir, entry.Name())
		if err := os.Remove(path); err != nil {
			p.logger.Warn("failed to remove empty descriptor",
				logger.String("file", entry.Name()),
				logger.Error(err))
			continue
		}

		filename := strings.TrimSuffix(entry.Name(), ".toml")

		// Drop the record so the key is re-materialized next resolution.
		p.index.Delete(filename)

		// Delete from Redis store (best effort)
		if p.store != nil {
			if err := p.store.DeleteRecord(ctx, filename); err != nil {
				p.logger.Warn("failed to delete record from redis",
					logger.String("filename", filename),
					logger.Error(err))
			}
		}

		p.logger.Info("pruned empty descriptor",
			logger.String("file", entry.Name()))

		deletedCount++
	}

	return deletedCount, nil
}
