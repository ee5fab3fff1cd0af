package domain

const (
	// TagBusiness is the instance tag naming the manifest subsection that
	// applies to this host.
	TagBusiness = "Business"

	// TagFabTag is the instance tag selecting among the key sets of a
	// business. Absent on many hosts.
	TagFabTag = "FabTag"

	// DefaultFabTag is the sentinel used when a host carries no FabTag tag.
	DefaultFabTag = "None"
)

// HostMetadata is the identity and organizational metadata of the current
// host, built once per sync cycle and immutable within it. It is not
// persisted across cycles.
type HostMetadata struct {
	// InstanceID is the cloud instance identifier (ex: i-0abc123).
	InstanceID string `yaml:"instance_id,omitempty"`

	// Region is the cloud region the instance runs in (ex: ap-south-1).
	Region string `yaml:"region,omitempty"`

	// Tags holds the raw instance tags. Business and FabTag are looked up
	// here; everything else is carried along untouched.
	Tags map[string]string `yaml:"tags"`
}

// Business returns the Business tag, or "" when the host has none.
func (m *HostMetadata) Business() string {
	return m.Tags[TagBusiness]
}

// FabTag returns the FabTag tag, defaulting to DefaultFabTag.
func (m *HostMetadata) FabTag() string {
	if v, ok := m.Tags[TagFabTag]; ok && v != "" {
		return v
	}
	return DefaultFabTag
}

// ApplyFabTagDefault inserts the FabTag sentinel into Tags when absent, so
// downstream consumers of the snapshot always see a value.
func (m *HostMetadata) ApplyFabTagDefault() {
	if m.Tags == nil {
		m.Tags = make(map[string]string, 1)
	}
	if _, ok := m.Tags[TagFabTag]; !ok {
		m.Tags[TagFabTag] = DefaultFabTag
	}
}
