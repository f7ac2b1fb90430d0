package runner

import (
	"context"
	"fmt"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/core"
)

// AgentResolver looks up a registered agent by id.
type AgentResolver func(id string) (*core.Agent, bool)

// InstallSpawnSkill registers the recursive delegation skill. The spawned
// sub-run shares the cluster, inherits lineage with the parent appended,
// and passes the same oversight and throttle path as any other run.
func (r *Runner) InstallSpawnSkill(resolve AgentResolver) error {
	return r.registry.Register(&capability.Skill{
		Name:        "spawn_subagent",
		Description: "Spawn a specialist sub-agent to handle a sub-task in parallel.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_id": map[string]any{"type": "string", "description": "The id of the specialist agent to recruit."},
				"message":  map[string]any{"type": "string", "description": "The instruction or question for the sub-agent."},
			},
			"required": []string{"agent_id", "message"},
		},
		Unsafe: true,
		Execute: func(ctx context.Context, params map[string]any, ec capability.ExecContext) (*core.ActionResult, error) {
			agentID, _ := params["agent_id"].(string)
			message, _ := params["message"].(string)
			if agentID == "" || message == "" {
				return nil, fmt.Errorf("agent_id and message are required")
			}

			sub, ok := resolve(agentID)
			if !ok {
				return nil, fmt.Errorf("unknown agent %q", agentID)
			}

			lineage := append(append([]string{}, ec.Lineage...), ec.Agent.ID)
			result := r.Run(ctx, sub, message, &RunOptions{
				ClusterID: ec.ClusterID,
				Depth:     ec.Depth + 1,
				Lineage:   lineage,
			})
			if !result.Success {
				return &core.ActionResult{
					Success: false,
					Error:   result.Err.Error(),
				}, nil
			}
			return &core.ActionResult{
				Success: true,
				Output: map[string]any{
					"agent_id": agentID,
					"output":   result.Output,
					"turns":    result.Turns,
				},
			}, nil
		},
	})
}
