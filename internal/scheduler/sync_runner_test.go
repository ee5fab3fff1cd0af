package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/satyamsundaram01/confsync/internal/descriptor"
	"github.com/satyamsundaram01/confsync/internal/domain"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/manifest"
	"github.com/satyamsundaram01/confsync/internal/metadata"
	"github.com/satyamsundaram01/confsync/internal/state"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	res   *metadata.Result
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context) (*metadata.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSyncer) SyncOnce(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func hostMeta(business, fabTag string) *metadata.Result {
	tags := map[string]string{domain.TagBusiness: business}
	if fabTag != "" {
		tags[domain.TagFabTag] = fabTag
	}
	meta := &domain.HostMetadata{
		InstanceID: "i-0abc123",
		Region:     "us-east-1",
		Tags:       tags,
	}
	meta.ApplyFabTagDefault()
	return &metadata.Result{Meta: meta, Source: metadata.SourcePrimary}
}

type runnerFixture struct {
	runner       *SyncRunner
	fetcher      *fakeFetcher
	syncer       *fakeSyncer
	index        *state.Index
	confdDir     string
	snapshotPath string
}

const sampleManifestYAML = `commons:
  - /env/all.yml
acme:
  - prod:
      - /acme/prod.yml
      - /acme/db.yml
  - staging:
      - /acme/staging.yml
globex:
  - None:
      - /globex/base.yml
`

func newTestRunner(t *testing.T, manifestYAML string, fetcher *fakeFetcher, syncer *fakeSyncer) *runnerFixture {
	t.Helper()

	log := logger.New("error", false, "")
	dir := t.TempDir()

	manifestPath := filepath.Join(dir, "manifest.yml")
	if err := os.WriteFile(manifestPath, []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	confdDir := filepath.Join(dir, "conf.d")
	templateDir := filepath.Join(dir, "templates")
	for _, d := range []string{confdDir, templateDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	idx := state.NewIndex()
	writer := descriptor.NewWriter(descriptor.Options{
		ConfdDir:     confdDir,
		TemplateDir:  templateDir,
		RenderDir:    filepath.Join(dir, "rendered"),
		TemplateName: "generic.tmpl",
		Mode:         "0644",
		ReloadCmd:    "systemctl reload confd",
	}, idx, log)

	snapshotPath := filepath.Join(dir, "run", "host-tags.yml")

	runner := NewSyncRunner(SyncRunnerOptions{
		Fetcher:        fetcher,
		Loader:         manifest.NewLoader(manifestPath),
		Writer:         writer,
		Pruner:         NewPruner(confdDir, idx, nil, log),
		Syncer:         syncer,
		Index:          idx,
		Interval:       time.Minute,
		SnapshotPath:   snapshotPath,
		SyncTrigger:    make(chan struct{}, 1),
		RefreshTrigger: make(chan struct{}, 1),
	}, log)

	return &runnerFixture{
		runner:       runner,
		fetcher:      fetcher,
		syncer:       syncer,
		index:        idx,
		confdDir:     confdDir,
		snapshotPath: snapshotPath,
	}
}

func descriptorFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSyncRunner_RunCycle(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})

	summary, err := fx.runner.RunCycle(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if summary.Business != "acme" || summary.FabTag != "prod" {
		t.Errorf("summary identity = (%q, %q), want (acme, prod)", summary.Business, summary.FabTag)
	}
	if summary.ResolvedKeys != 3 {
		t.Errorf("ResolvedKeys = %d, want 3", summary.ResolvedKeys)
	}
	if summary.Materialized != 3 {
		t.Errorf("Materialized = %d, want 3", summary.Materialized)
	}
	if summary.MetadataSource != "primary" {
		t.Errorf("MetadataSource = %q, want primary", summary.MetadataSource)
	}

	got := descriptorFiles(t, fx.confdDir)
	want := map[string]bool{
		"-env-all-yml.toml":  true,
		"-acme-prod-yml.toml": true,
		"-acme-db-yml.toml":  true,
	}
	if len(got) != len(want) {
		t.Fatalf("descriptor files = %v, want %d files", got, len(want))
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected descriptor file %q", name)
		}
	}

	if _, err := os.Stat(fx.snapshotPath); err != nil {
		t.Errorf("tags snapshot not written: %v", err)
	}

	if fx.index.LastCycle().IsZero() {
		t.Error("cycle completion not marked on index")
	}
	if last := fx.runner.LastCycle(); last == nil || last.Materialized != 3 {
		t.Errorf("LastCycle() = %+v, want recorded summary", last)
	}
}

func TestSyncRunner_RunCycle_UnmatchedFabTag(t *testing.T) {
	// No "qa" entry under acme; only commons resolve.
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "qa")}, &fakeSyncer{})

	summary, err := fx.runner.RunCycle(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.ResolvedKeys != 1 || summary.Materialized != 1 {
		t.Errorf("resolved/materialized = %d/%d, want 1/1",
			summary.ResolvedKeys, summary.Materialized)
	}
	if got := descriptorFiles(t, fx.confdDir); len(got) != 1 || got[0] != "-env-all-yml.toml" {
		t.Errorf("descriptor files = %v, want only commons", got)
	}
}

func TestSyncRunner_RunCycle_MissingFabTagUsesSentinel(t *testing.T) {
	// Untagged globex host picks up the "None" entry.
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("globex", "")}, &fakeSyncer{})

	summary, err := fx.runner.RunCycle(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.FabTag != domain.DefaultFabTag {
		t.Errorf("FabTag = %q, want %q", summary.FabTag, domain.DefaultFabTag)
	}
	if summary.ResolvedKeys != 2 || summary.Materialized != 2 {
		t.Errorf("resolved/materialized = %d/%d, want 2/2",
			summary.ResolvedKeys, summary.Materialized)
	}
}

func TestSyncRunner_RunCycle_SecondRunSkips(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})
	ctx := context.Background()

	if _, err := fx.runner.RunCycle(ctx, false); err != nil {
		t.Fatal(err)
	}
	summary, err := fx.runner.RunCycle(ctx, false)
	if err != nil {
		t.Fatalf("second RunCycle failed: %v", err)
	}
	if summary.Materialized != 0 || summary.Skipped != 3 {
		t.Errorf("second run materialized/skipped = %d/%d, want 0/3",
			summary.Materialized, summary.Skipped)
	}
}

func TestSyncRunner_RunCycle_InvalidKeyReported(t *testing.T) {
	manifestYAML := `commons:
  - /env/all.yml
  - no-separator
`
	fx := newTestRunner(t, manifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})

	summary, err := fx.runner.RunCycle(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", summary.Invalid)
	}
	if summary.Materialized != 1 {
		t.Errorf("Materialized = %d, want 1; a bad key must not block good ones", summary.Materialized)
	}
}

func TestSyncRunner_RunCycle_MetadataFailureAborts(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("metadata unavailable")}
	fx := newTestRunner(t, sampleManifestYAML, fetcher, &fakeSyncer{})

	_, err := fx.runner.RunCycle(context.Background(), false)
	if err == nil {
		t.Fatal("expected error when metadata is unavailable")
	}
	if got := descriptorFiles(t, fx.confdDir); len(got) != 0 {
		t.Errorf("descriptors written without metadata: %v", got)
	}
	// The aborted cycle is still observable.
	if last := fx.runner.LastCycle(); last == nil || last.Error == "" {
		t.Errorf("LastCycle() = %+v, want recorded failure", last)
	}
}

func TestSyncRunner_RunCycle_SyncFailureContinues(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML,
		&fakeFetcher{res: hostMeta("acme", "prod")},
		&fakeSyncer{err: errors.New("exit status 1")})

	summary, err := fx.runner.RunCycle(context.Background(), false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.SyncError == "" {
		t.Error("SyncError not recorded")
	}
	if summary.Materialized != 3 {
		t.Errorf("Materialized = %d, want 3; store sync failure must not block the cycle",
			summary.Materialized)
	}
}

func TestSyncRunner_RunCycle_ManifestUnreadableAborts(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})

	loader := manifest.NewLoader(filepath.Join(t.TempDir(), "missing.yml"))
	fx.runner.loader = loader

	if _, err := fx.runner.RunCycle(context.Background(), false); err == nil {
		t.Fatal("expected error for unreadable manifest")
	}
}

func TestSyncRunner_RunCycle_Forced(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})
	ctx := context.Background()

	if _, err := fx.runner.RunCycle(ctx, false); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(fx.confdDir, "-acme-prod-yml.toml")
	if err := os.WriteFile(path, []byte("sentinel"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := fx.runner.RunCycle(ctx, true)
	if err != nil {
		t.Fatalf("forced RunCycle failed: %v", err)
	}
	if !summary.Forced {
		t.Error("summary not marked forced")
	}
	if summary.Materialized != 3 {
		t.Errorf("forced Materialized = %d, want 3", summary.Materialized)
	}

	data, _ := os.ReadFile(path)
	if string(data) == "sentinel" {
		t.Error("forced cycle did not rewrite the descriptor")
	}
}

func TestSyncRunner_RunCycle_PruneThenRematerialize(t *testing.T) {
	fx := newTestRunner(t, sampleManifestYAML, &fakeFetcher{res: hostMeta("acme", "prod")}, &fakeSyncer{})
	ctx := context.Background()

	if _, err := fx.runner.RunCycle(ctx, false); err != nil {
		t.Fatal(err)
	}

	// Truncate one descriptor, as if its key had no value upstream.
	path := filepath.Join(fx.confdDir, "-acme-db-yml.toml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := fx.runner.RunCycle(ctx, false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", summary.Pruned)
	}
	if summary.Materialized != 1 {
		t.Errorf("Materialized = %d, want 1 (the pruned key, same cycle)", summary.Materialized)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("pruned descriptor not re-materialized: %v", err)
	}
	if info.Size() == 0 {
		t.Error("re-materialized descriptor is empty")
	}
}

func waitForCalls(t *testing.T, f *fakeFetcher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.callCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("fetcher calls = %d, want %d", f.callCount(), want)
}

func TestSyncRunner_Start_TicksAndTriggers(t *testing.T) {
	fetcher := &fakeFetcher{res: hostMeta("acme", "prod")}
	fx := newTestRunner(t, sampleManifestYAML, fetcher, &fakeSyncer{})

	tick := make(chan time.Time)
	fx.runner.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return tick, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := fx.runner.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fx.runner.Stop()

	// One cycle runs immediately.
	waitForCalls(t, fetcher, 1)

	tick <- time.Now()
	waitForCalls(t, fetcher, 2)

	fx.runner.syncTrigger <- struct{}{}
	waitForCalls(t, fetcher, 3)

	// Forced refresh rewrites descriptors.
	path := filepath.Join(fx.confdDir, "-acme-prod-yml.toml")
	if err := os.WriteFile(path, []byte("sentinel"), 0o644); err != nil {
		t.Fatal(err)
	}
	fx.runner.refreshTrigger <- struct{}{}
	waitForCalls(t, fetcher, 4)

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		if string(data) != "sentinel" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refresh trigger did not rewrite the descriptor")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
