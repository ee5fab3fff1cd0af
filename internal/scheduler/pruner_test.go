package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/satyamsundaram01/confsync/internal/domain"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/state"
)

func TestPruner_Prune(t *testing.T) {
	dir := t.TempDir()
	idx := state.NewIndex()
	p := NewPruner(dir, idx, nil, logger.New("error", false, ""))

	files := map[string][]byte{
		"-acme-prod-yml.toml": {},                  // empty, pruned
		"-env-all-yml.toml":   []byte("[template]"), // non-empty, kept
		"-env-db-yml.toml":    {},                  // empty, pruned
		"notes.txt":           {},                  // not a descriptor
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, fn := range []string{"-acme-prod-yml", "-env-all-yml", "-env-db-yml"} {
		idx.Put(&domain.Record{Filename: fn, Status: domain.StatusMaterialized})
	}

	pruned, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	if _, err := os.Stat(filepath.Join(dir, "-acme-prod-yml.toml")); !os.IsNotExist(err) {
		t.Error("empty descriptor not removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "-env-all-yml.toml")); err != nil {
		t.Error("non-empty descriptor was removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-descriptor file was removed")
	}

	// Pruned keys lose their record so the next cycle re-materializes them.
	if _, ok := idx.Get("-acme-prod-yml"); ok {
		t.Error("record for pruned descriptor still tracked")
	}
	if _, ok := idx.Get("-env-all-yml"); !ok {
		t.Error("record for kept descriptor dropped")
	}
}

func TestPruner_Prune_MissingDir(t *testing.T) {
	p := NewPruner("/nonexistent/confd", state.NewIndex(), nil, logger.New("error", false, ""))
	if _, err := p.Prune(context.Background()); err == nil {
		t.Error("expected error for missing descriptor dir")
	}
}
