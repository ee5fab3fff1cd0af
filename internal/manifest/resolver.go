package manifest

// Resolve flattens the manifest into the ordered list of key paths that
// apply to a host with the given business and fabTag.
//
// The result starts with the commons list. Each entry of the business
// section contributes its key list when its tag equals fabTag, preserving
// the relative order of manifest entries. An unknown business resolves to
// commons only.
//
// Keys are NOT deduplicated: duplicates only produce redundant idempotent
// writes downstream, and dropping them here would hide what the manifest
// actually declares.
func Resolve(m *Manifest, business, fabTag string) []string {
	keys := make([]string, 0, len(m.Commons))
	keys = append(keys, m.Commons...)

	for _, entry := range m.Businesses[business] {
		if ks, ok := entry[fabTag]; ok {
			keys = append(keys, ks...)
		}
	}

	return keys
}
