package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":9500"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile   string // optional fixed log location, "" = stderr only

	// Sync inputs and outputs
	ManifestPath string // local cached copy of the central manifest
	ConfdDir     string // directory receiving descriptor (.toml) files
	TemplateDir  string // directory holding the shared generic template
	RenderDir    string // directory the templating backend renders into
	SnapshotPath string // transient host-tags snapshot consumed downstream

	TemplateName   string // name of the shared generic render template
	DescriptorMode string // file mode stanza written into descriptors
	ReloadCmd      string // reload_cmd written into every descriptor

	// Scheduler
	SyncInterval  time.Duration // interval between sync cycles (default: 60s)
	SyncCommand   string        // external one-shot store-sync command line
	WatchManifest bool          // true => re-sync when the manifest file changes

	// Host metadata endpoints
	IdentityURL     string        // instance-identity document (JSON)
	TagServiceURL   string        // tag lookup API, filtered by instance id
	WhoamiURL       string        // fallback "who am I" metadata service
	MetadataTimeout time.Duration // per-request timeout for metadata calls

	// Redis (optional, empty addr = record persistence disabled)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedCIDRS []string // restrict admin endpoints to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers

	RateLimitBurst  int // burst for mutating admin endpoints
	RateLimitPerMin int // sustained per-IP rate for mutating admin endpoints
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("CONFSYNC_LISTEN_PORT", ":9500"),
		ShutdownTimeout: mustDuration("CONFSYNC_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("CONFSYNC_LOG_LEVEL", "info"),
		PrettyLog: mustBool("CONFSYNC_PRETTY_LOG", false),
		LogFile:   getenv("CONFSYNC_LOG_FILE", ""),

		// Sync inputs and outputs
		ManifestPath: getenv("CONFSYNC_MANIFEST_FILE", "/etc/confsync/manifest.yml"),
		ConfdDir:     getenv("CONFSYNC_CONFD_DIR", "/etc/confd/conf.d"),
		TemplateDir:  getenv("CONFSYNC_TEMPLATE_DIR", "/etc/confd/templates"),
		RenderDir:    getenv("CONFSYNC_RENDER_DIR", "/etc/confsync/rendered"),
		SnapshotPath: getenv("CONFSYNC_SNAPSHOT_FILE", "/run/confsync/host-tags.yml"),

		TemplateName:   getenv("CONFSYNC_TEMPLATE_NAME", "generic.tmpl"),
		DescriptorMode: getenv("CONFSYNC_DESCRIPTOR_MODE", "0644"),
		ReloadCmd:      getenv("CONFSYNC_RELOAD_CMD", "systemctl reload confd"),

		// Scheduler
		SyncInterval:  mustDuration("CONFSYNC_SYNC_INTERVAL", 60*time.Second),
		SyncCommand:   getenv("CONFSYNC_SYNC_COMMAND", "confd -onetime -backend redis -node 127.0.0.1:6379"),
		WatchManifest: mustBool("CONFSYNC_WATCH_MANIFEST", true),

		// Host metadata endpoints
		IdentityURL:     getenv("CONFSYNC_IDENTITY_URL", "http://169.254.169.254/latest/dynamic/instance-identity/document"),
		TagServiceURL:   getenv("CONFSYNC_TAG_SERVICE_URL", "http://tags.dp.internal/v1/instance-tags"),
		WhoamiURL:       getenv("CONFSYNC_WHOAMI_URL", "http://metadata.dp.internal/v1/whoami"),
		MetadataTimeout: mustDuration("CONFSYNC_METADATA_TIMEOUT", 5*time.Second),

		// Redis settings
		RedisAddr:           getenv("CONFSYNC_REDIS_ADDR", ""),
		RedisUser:           getenv("CONFSYNC_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("CONFSYNC_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("CONFSYNC_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("CONFSYNC_ALLOWED_CIDRS", "127.0.0.1/32, ::1/128")),
		TrustProxy:   mustBool("CONFSYNC_TRUST_PROXY", false),

		RateLimitBurst:  getenvInt("CONFSYNC_RATE_LIMIT_BURST", 5),
		RateLimitPerMin: getenvInt("CONFSYNC_RATE_LIMIT_PER_MIN", 10),
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
