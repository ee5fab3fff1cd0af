package redis

const (
	// KeyPrefixRecord is the prefix for materialization record keys
	KeyPrefixRecord = "confsync:descriptor:"
	// KeyAllRecords is the key for the set of all record filenames
	KeyAllRecords = "confsync:descriptors:all"
)

// RecordKey returns the Redis key for a record by descriptor filename
func RecordKey(filename string) string {
	return KeyPrefixRecord + filename
}

// AllRecordsKey returns the key for the set of all record filenames
func AllRecordsKey() string {
	return KeyAllRecords
}
