// Package capability is the static catalog of named skills: parameter
// schemas, executors, and the pure department→visible-skills filter that
// decides which tools a turn may even offer to the model.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/llm"
)

// ExecContext is passed into every skill execution. CallTool re-enters the
// identical oversight-gated path, so a skill's nested calls are approved
// (or rejected) exactly like top-level ones.
type ExecContext struct {
	Agent     *core.Agent
	ClusterID string
	Depth     int
	Lineage   []string
	CallTool  func(ctx context.Context, skill string, params map[string]any, description string) (*core.ActionResult, error)
}

// Executor runs a skill with validated parameters.
type Executor func(ctx context.Context, params map[string]any, ec ExecContext) (*core.ActionResult, error)

// Skill is a named, schema-described tool an agent may invoke.
type Skill struct {
	Name        string
	Description string
	// Schema is the JSON-schema object describing the parameters.
	Schema map[string]any
	// Unsafe marks side-effecting skills; safe mode strips them from the
	// offered tool list.
	Unsafe  bool
	Execute Executor
}

// Registry holds the registered skills. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// Register adds a skill, replacing any previous skill of the same name.
func (r *Registry) Register(s *Skill) error {
	if s == nil || s.Name == "" {
		return errors.New(errors.CodeConfig, "skill requires a name", nil)
	}
	if s.Execute == nil {
		return errors.New(errors.CodeConfig, fmt.Sprintf("skill %q has no executor", s.Name), nil)
	}
	r.mu.Lock()
	r.skills[s.Name] = s
	r.mu.Unlock()
	return nil
}

// Get resolves a skill by name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns all registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.skills))
	for name := range r.skills {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run executes a named skill, folding executor panics and errors into a
// failed ActionResult. Unknown skills return a RUNTIME_ERROR.
func (r *Registry) Run(ctx context.Context, name string, params map[string]any, ec ExecContext) (result *core.ActionResult, err error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, errors.New(errors.CodeRuntime, fmt.Sprintf("unknown skill %q", name), nil)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = &core.ActionResult{Success: false, Error: fmt.Sprintf("skill panicked: %v", rec)}
			err = nil
		}
	}()

	result, err = s.Execute(ctx, params, ec)
	if err != nil {
		return &core.ActionResult{Success: false, Error: err.Error()}, nil
	}
	if result == nil {
		result = &core.ActionResult{Success: true}
	}
	return result, nil
}

// LLMTools converts a list of skills to the wire tool shape offered to the
// model.
func LLMTools(skills []*Skill) []llm.Tool {
	out := make([]llm.Tool, 0, len(skills))
	for _, s := range skills {
		out = append(out, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}
	return out
}
