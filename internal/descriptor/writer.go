package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/satyamsundaram01/confsync/internal/domain"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/state"
)

// ErrInvalidKeyPath marks a key path without a slash separator. Such a key
// cannot be split into (prefix, leafKey) and is reported, not written.
var ErrInvalidKeyPath = errors.New("key path has no separator")

// descriptorTmpl is the fixed stanza understood by the templating backend.
const descriptorTmpl = `[template]
src = "{{ .Src }}"
dest = "{{ .Dest }}"
mode = "{{ .Mode }}"
keys = [
  "{{ .Key }}",
]
prefix = "{{ .Prefix }}"
reload_cmd = "{{ .ReloadCmd }}"
`

// genericTmpl is the shared render template: for every value under the
// wildcard namespace rooted at the descriptor prefix, emit the raw value.
const genericTmpl = `{{range getvs "/*"}}{{.}}
{{end}}`

var stanza = template.Must(template.New("descriptor").Parse(descriptorTmpl))

// Options carries the target directories and fixed descriptor fields.
// These were process-wide constants in earlier revisions of the agent; the
// writer now receives them explicitly.
type Options struct {
	ConfdDir     string // where descriptor .toml files are written
	TemplateDir  string // where the shared generic template lives
	RenderDir    string // dest directory the backend renders into
	TemplateName string // ex: "generic.tmpl"
	Mode         string // ex: "0644"
	ReloadCmd    string // reload_cmd stamped into every descriptor
}

// Writer materializes one descriptor file per resolved key path. The skip
// decision is owned by the state index, not by probing the filesystem on
// every call; files found on disk without a record are adopted as-is.
type Writer struct {
	opts   Options
	index  *state.Index
	logger logger.Logger
}

// NewWriter creates a descriptor writer
func NewWriter(opts Options, idx *state.Index, log logger.Logger) *Writer {
	return &Writer{
		opts:   opts,
		index:  idx,
		logger: log,
	}
}

// Filename derives the descriptor file name from a key path by replacing
// every path separator and dot with a hyphen. The derivation is a pure
// function of the key path; distinct paths like "/a.b/c" and "/a-b/c"
// collide on purpose and the first writer wins.
func Filename(keyPath string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(keyPath)
}

// Split separates a key path at its last slash into (prefix, leafKey).
func Split(keyPath string) (prefix, leafKey string, err error) {
	idx := strings.LastIndex(keyPath, "/")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKeyPath, keyPath)
	}
	return keyPath[:idx], keyPath[idx+1:], nil
}

// Materialize writes the descriptor for keyPath unless one is already
// tracked. A blank key path is a no-op. With force set, an existing
// descriptor is rewritten and its record replaced. The bool reports
// whether a file was actually written.
func (w *Writer) Materialize(keyPath string, force bool) (*domain.Record, bool, error) {
	keyPath = strings.TrimSpace(keyPath)
	if keyPath == "" {
		return nil, false, nil
	}

	filename := Filename(keyPath)

	if !force {
		if rec, ok := w.index.Get(filename); ok {
			w.logger.Debug("descriptor already materialized, skipping",
				logger.String("key", keyPath),
				logger.String("filename", filename))
			return rec, false, nil
		}
		if w.exists(filename) {
			// File on disk but unknown to the index (ex: survived a restart
			// with Redis disabled). Adopt it without rewriting.
			rec := &domain.Record{
				Filename: filename,
				KeyPath:  keyPath,
				Status:   domain.StatusAdopted,
			}
			w.index.Put(rec)
			w.logger.Debug("adopted existing descriptor",
				logger.String("key", keyPath),
				logger.String("filename", filename))
			return rec, false, nil
		}
	}

	prefix, leafKey, err := Split(keyPath)
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	err = stanza.Execute(&buf, struct {
		Src, Dest, Mode, Key, Prefix, ReloadCmd string
	}{
		Src:       w.opts.TemplateName,
		Dest:      filepath.Join(w.opts.RenderDir, filename+".conf"),
		Mode:      w.opts.Mode,
		Key:       leafKey,
		Prefix:    prefix,
		ReloadCmd: w.opts.ReloadCmd,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to render descriptor for %s: %w", keyPath, err)
	}

	if err := os.WriteFile(w.path(filename), buf.Bytes(), 0o644); err != nil {
		return nil, false, fmt.Errorf("failed to write descriptor %s: %w", filename, err)
	}

	now := time.Now()
	rec := &domain.Record{
		Filename:       filename,
		KeyPath:        keyPath,
		Status:         domain.StatusMaterialized,
		MaterializedAt: now,
	}
	w.index.Put(rec)

	w.logger.Info("materialized descriptor",
		logger.String("key", keyPath),
		logger.String("filename", filename))

	return rec, true, nil
}

// EnsureTemplate writes the shared generic render template once if missing.
func (w *Writer) EnsureTemplate() error {
	path := filepath.Join(w.opts.TemplateDir, w.opts.TemplateName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat template %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(genericTmpl), 0o644); err != nil {
		return fmt.Errorf("failed to write generic template: %w", err)
	}

	w.logger.Info("wrote generic render template", logger.String("path", path))
	return nil
}

// SeedFromDisk records every descriptor file already present in the confd
// directory so restarts keep the idempotency guarantee without Redis.
func (w *Writer) SeedFromDisk() error {
	entries, err := os.ReadDir(w.opts.ConfdDir)
	if err != nil {
		return fmt.Errorf("failed to read descriptor dir: %w", err)
	}

	adopted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		filename := strings.TrimSuffix(entry.Name(), ".toml")
		if _, ok := w.index.Get(filename); ok {
			continue
		}
		w.index.Put(&domain.Record{
			Filename: filename,
			Status:   domain.StatusAdopted,
		})
		adopted++
	}

	if adopted > 0 {
		w.logger.Info("adopted descriptors found on disk",
			logger.Int("count", adopted))
	}
	return nil
}

func (w *Writer) path(filename string) string {
	return filepath.Join(w.opts.ConfdDir, filename+".toml")
}

func (w *Writer) exists(filename string) bool {
	_, err := os.Stat(w.path(filename))
	return err == nil
}
