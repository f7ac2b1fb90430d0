// Package core holds the shared domain types of the control plane: agents,
// tool calls, events, and run-scoped context helpers.
package core

import (
	"sync"
	"time"
)

// AgentStatus describes the lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusRunning AgentStatus = "running"
	StatusWaiting AgentStatus = "waiting_approval"
	StatusError   AgentStatus = "error"
	StatusKilled  AgentStatus = "killed"
)

// ModelConfig holds the provider binding and rate-limit parameters of an
// agent's model. Zero limits mean "unlimited" for that dimension.
type ModelConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	APIKey      string  `json:"-" yaml:"api_key"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	RPM         int     `json:"rpm" yaml:"rpm"` // requests per minute
	TPM         int     `json:"tpm" yaml:"tpm"` // tokens per minute
	RPD         int     `json:"rpd" yaml:"rpd"` // requests per day
	TPD         int     `json:"tpd" yaml:"tpd"` // tokens per day
}

// Agent is a long-lived configured identity on whose behalf runs execute.
// One instance per logical agent, shared across many runs; the Runner
// mutates usage totals and status through the locked setters.
type Agent struct {
	mu sync.Mutex

	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Role       string      `json:"role"`
	Department string      `json:"department"`
	Config     ModelConfig `json:"config"`

	Status     AgentStatus `json:"status"`
	TokensUsed int         `json:"tokens_used"`
	CostUSD    float64     `json:"cost_usd"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SetStatus updates the agent status.
func (a *Agent) SetStatus(s AgentStatus) {
	a.mu.Lock()
	a.Status = s
	a.mu.Unlock()
}

// GetStatus returns the current status.
func (a *Agent) GetStatus() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Status
}

// AddUsage accumulates token and cost totals after a generation.
func (a *Agent) AddUsage(tokens int, costUSD float64) {
	a.mu.Lock()
	a.TokensUsed += tokens
	a.CostUSD += costUSD
	a.mu.Unlock()
}

// Snapshot returns a copy of the mutable usage fields.
func (a *Agent) Snapshot() (status AgentStatus, tokens int, cost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Status, a.TokensUsed, a.CostUSD
}
