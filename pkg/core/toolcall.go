package core

import (
	"time"

	"github.com/google/uuid"
)

// ToolCall is a concrete attempted invocation of a skill with bound
// parameters. Immutable once created; the terminal decision is recorded
// separately in the oversight ledger.
type ToolCall struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	Department  string         `json:"department"`
	ClusterID   string         `json:"cluster_id,omitempty"`
	Skill       string         `json:"skill"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewToolCall builds a tool call with a fresh id and timestamp.
func NewToolCall(agentID, department, clusterID, skill string, params map[string]any, description string) ToolCall {
	return ToolCall{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		Department:  department,
		ClusterID:   clusterID,
		Skill:       skill,
		Params:      params,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}
