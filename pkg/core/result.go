package core

// Handoff signals that a skill result should be forwarded to another
// cluster's agents.
type Handoff struct {
	SourceCluster string         `json:"source_cluster"`
	TargetCluster string         `json:"target_cluster"`
	Payload       map[string]any `json:"payload"`
}

// ActionResult is the outcome of executing an authorized tool call.
// Executor panics and errors are folded into a failed result by the caller.
type ActionResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Handoff *Handoff       `json:"handoff,omitempty"`
}
