package scheduler

import (
	"context"
	"os/exec"
	"strings"

	"github.com/satyamsundaram01/confsync/internal/logger"
)

// StoreSyncer runs the external one-shot step that pulls the latest values
// from the central store into the local backend.
type StoreSyncer interface {
	SyncOnce(ctx context.Context) error
}

// ExecSyncer invokes a configured command line. Its failure is logged by
// the caller and never aborts a cycle; the fixed sync period is the only
// retry mechanism.
type ExecSyncer struct {
	command string
	logger  logger.Logger
}

// NewExecSyncer creates a syncer for the given command line
func NewExecSyncer(command string, log logger.Logger) *ExecSyncer {
	return &ExecSyncer{
		command: command,
		logger:  log,
	}
}

// SyncOnce runs the command to completion. No timeout is applied beyond
// the lifetime of ctx; the command blocks the cycle for its full duration.
func (e *ExecSyncer) SyncOnce(ctx context.Context) error {
	parts := strings.Fields(e.command)
	if len(parts) == 0 {
		e.logger.Debug("no store-sync command configured, skipping")
		return nil
	}

	e.logger.Info("invoking store sync", logger.String("command", e.command))

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		e.logger.Debug("store sync output", logger.String("output", string(out)))
	}
	return err
}
