package domain

import "testing"

func TestHostMetadata_FabTag(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{
			name: "fabtag present",
			tags: map[string]string{"Business": "acme", "FabTag": "prod"},
			want: "prod",
		},
		{
			name: "fabtag absent",
			tags: map[string]string{"Business": "acme"},
			want: DefaultFabTag,
		},
		{
			name: "fabtag empty",
			tags: map[string]string{"FabTag": ""},
			want: DefaultFabTag,
		},
		{
			name: "no tags at all",
			tags: nil,
			want: DefaultFabTag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &HostMetadata{Tags: tt.tags}
			if got := m.FabTag(); got != tt.want {
				t.Errorf("FabTag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostMetadata_ApplyFabTagDefault(t *testing.T) {
	m := &HostMetadata{Tags: map[string]string{"Business": "acme"}}
	m.ApplyFabTagDefault()
	if m.Tags[TagFabTag] != DefaultFabTag {
		t.Errorf("expected FabTag default %q, got %q", DefaultFabTag, m.Tags[TagFabTag])
	}

	// An explicit value must never be overwritten.
	m2 := &HostMetadata{Tags: map[string]string{"FabTag": "prod"}}
	m2.ApplyFabTagDefault()
	if m2.Tags[TagFabTag] != "prod" {
		t.Errorf("ApplyFabTagDefault overwrote explicit value: %q", m2.Tags[TagFabTag])
	}

	// Nil tag map gets initialized.
	m3 := &HostMetadata{}
	m3.ApplyFabTagDefault()
	if m3.Tags[TagFabTag] != DefaultFabTag {
		t.Errorf("expected FabTag default on nil map, got %q", m3.Tags[TagFabTag])
	}
}

func TestHostMetadata_Business(t *testing.T) {
	m := &HostMetadata{Tags: map[string]string{"Business": "acme"}}
	if got := m.Business(); got != "acme" {
		t.Errorf("Business() = %q, want %q", got, "acme")
	}
	empty := &HostMetadata{}
	if got := empty.Business(); got != "" {
		t.Errorf("Business() on empty tags = %q, want empty", got)
	}
}
