package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/scheduler"
	"github.com/satyamsundaram01/confsync/internal/state"
)

// CycleReporter exposes the outcome of the most recent sync cycle.
type CycleReporter interface {
	LastCycle() *scheduler.CycleSummary
}

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedCIDRS    []string // IPs allowed to reach the admin endpoints
	TrustProxy      bool     // true if running behind a trusted reverse proxy
	RateLimitBurst  int      // burst for mutating endpoints
	RateLimitPerMin int      // sustained per-IP rate for mutating endpoints

	RedisClient *redis.Client // nil when record persistence is disabled
	Index       *state.Index  // in-memory materialization index
	Runner      CycleReporter // last sync cycle summary

	SyncTrigger    chan struct{} // kicks an immediate sync cycle
	RefreshTrigger chan struct{} // kicks a forced re-materialization cycle
}
