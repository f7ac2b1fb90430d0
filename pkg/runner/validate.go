package runner

import (
	"fmt"

	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
)

const (
	defaultMaxTaskBytes  = 32 * 1024
	defaultMaxSpawnDepth = 5
)

// validateInput rejects oversized tasks, circular delegation lineages, and
// spawn chains past the depth limit before any turn runs.
func (r *Runner) validateInput(agent *core.Agent, message string, opts *RunOptions) *errors.AegisError {
	if len(message) > r.maxTaskBytes {
		return errors.New(errors.CodeConfig,
			fmt.Sprintf("task exceeds %d bytes", r.maxTaskBytes), nil).
			WithContext("size", len(message))
	}
	for _, ancestor := range opts.Lineage {
		if ancestor == agent.ID {
			return errors.New(errors.CodeRuntime, "circular delegation detected", nil).
				WithContext("agent_id", agent.ID).
				WithContext("lineage", opts.Lineage)
		}
	}
	if opts.Depth > r.maxSpawnDepth {
		return errors.New(errors.CodeRuntime,
			fmt.Sprintf("delegation depth %d exceeds limit %d", opts.Depth, r.maxSpawnDepth), nil)
	}
	return nil
}
