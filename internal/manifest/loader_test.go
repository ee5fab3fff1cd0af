package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleManifest = `commons:
  - /env/all.yml
acme:
  - prod:
      - /acme/prod.yml
  - staging:
      - /acme/staging.yml
globex:
  - None:
      - /globex/base.yml
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write manifest fixture: %v", err)
	}
	return path
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader(writeManifest(t, sampleManifest))

	m, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !reflect.DeepEqual(m.Commons, []string{"/env/all.yml"}) {
		t.Errorf("Commons = %v, want [/env/all.yml]", m.Commons)
	}

	if len(m.Businesses) != 2 {
		t.Fatalf("expected 2 businesses, got %d", len(m.Businesses))
	}

	acme := m.Businesses["acme"]
	if len(acme) != 2 {
		t.Fatalf("expected 2 acme entries, got %d", len(acme))
	}
	if !reflect.DeepEqual(acme[0]["prod"], []string{"/acme/prod.yml"}) {
		t.Errorf("acme[0][prod] = %v", acme[0]["prod"])
	}
	if !reflect.DeepEqual(acme[1]["staging"], []string{"/acme/staging.yml"}) {
		t.Errorf("acme[1][staging] = %v", acme[1]["staging"])
	}

	globex := m.Businesses["globex"]
	if len(globex) != 1 || !reflect.DeepEqual(globex[0]["None"], []string{"/globex/base.yml"}) {
		t.Errorf("globex entries = %v", globex)
	}
}

func TestLoader_Load_PreservesEntryOrder(t *testing.T) {
	// Two entries for the same tag must keep document order, since the
	// resolver appends them in order of appearance.
	content := `commons: []
acme:
  - prod:
      - /acme/first.yml
  - prod:
      - /acme/second.yml
`
	loader := NewLoader(writeManifest(t, content))
	m, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	got := Resolve(m, "acme", "prod")
	want := []string{"/acme/first.yml", "/acme/second.yml"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resolved order = %v, want %v", got, want)
	}
}

func TestLoader_Load_Unreadable(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
	}{
		{
			name:    "missing file",
			missing: true,
		},
		{
			name:    "malformed yaml",
			content: "commons: [unclosed",
		},
		{
			name:    "root is not a mapping",
			content: "- just\n- a\n- sequence\n",
		},
		{
			name:    "business section is not a sequence",
			content: "acme: not-a-sequence\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.missing {
				path = filepath.Join(t.TempDir(), "does-not-exist.yml")
			} else {
				path = writeManifest(t, tt.content)
			}

			if _, err := NewLoader(path).Load(); err == nil {
				t.Error("Load() should have failed")
			}
		})
	}
}
