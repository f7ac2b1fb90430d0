// Package runner drives the bounded think/act loop: throttle, prune,
// generate, gate, execute. Every side-effecting action passes the oversight
// gate, and no provider is called faster than the governor allows.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/governor"
	"github.com/jllopis/aegis/pkg/llm"
	"github.com/jllopis/aegis/pkg/oversight"
	"github.com/jllopis/aegis/pkg/rates"
	"github.com/jllopis/aegis/pkg/telemetry"
)

const (
	defaultMaxTurns       = 12
	defaultPruneThreshold = 0.70
	defaultTokenRatio     = 4
)

// ProviderFactory resolves an agent's model configuration to a provider.
// It fails with CONFIG_ERROR semantics (missing credentials, unknown
// provider) before the run starts.
type ProviderFactory func(cfg core.ModelConfig) (llm.Provider, error)

// RunResult is the terminal outcome of a run.
type RunResult struct {
	Success bool               `json:"success"`
	Output  string             `json:"output,omitempty"`
	Err     *errors.AegisError `json:"error,omitempty"`
	Turns   int                `json:"turns"`
	Usage   llm.Usage          `json:"usage"`
}

// RunOptions carries per-run parameters.
type RunOptions struct {
	ClusterID string
	Depth     int
	Lineage   []string
	SafeMode  bool
	// OnProgress receives phase telemetry during the run.
	OnProgress func(phase string, payload map[string]any)
}

func (o *RunOptions) progress(phase string, payload map[string]any) {
	if o != nil && o.OnProgress != nil {
		o.OnProgress(phase, payload)
	}
}

// Runner executes agent turns. One Runner is shared by all agents; the
// governor, gate, and registry are injected, never global.
type Runner struct {
	providers ProviderFactory
	governor  *governor.Governor
	gate      *oversight.Gate
	registry  *capability.Registry
	policy    *capability.DepartmentPolicy
	abort     *AbortFlag
	emitter   core.EventEmitter
	tracer    trace.Tracer

	maxTurns       int
	pruneThreshold float64
	tokenRatio     int
	maxTaskBytes   int
	maxSpawnDepth  int
	safeMode       bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxTurns overrides the turn ceiling.
func WithMaxTurns(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// WithPruneThreshold overrides the history budget fraction.
func WithPruneThreshold(f float64) Option {
	return func(r *Runner) {
		if f > 0 && f <= 1 {
			r.pruneThreshold = f
		}
	}
}

// WithTokenRatio overrides the chars-per-token estimate.
func WithTokenRatio(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.tokenRatio = n
		}
	}
}

// WithMaxTaskBytes overrides the inbound task size limit.
func WithMaxTaskBytes(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxTaskBytes = n
		}
	}
}

// WithMaxSpawnDepth overrides the delegation depth limit.
func WithMaxSpawnDepth(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxSpawnDepth = n
		}
	}
}

// WithSafeMode strips side-effecting skills from every run's tool list.
func WithSafeMode(enabled bool) Option {
	return func(r *Runner) { r.safeMode = enabled }
}

// WithAbortFlag shares an externally owned abort flag.
func WithAbortFlag(f *AbortFlag) Option {
	return func(r *Runner) {
		if f != nil {
			r.abort = f
		}
	}
}

// WithEmitter sets the observer sink for run events.
func WithEmitter(e core.EventEmitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// WithPolicy sets the department visibility policy.
func WithPolicy(p *capability.DepartmentPolicy) Option {
	return func(r *Runner) {
		if p != nil {
			r.policy = p
		}
	}
}

// New creates a Runner around the injected control-plane services.
func New(providers ProviderFactory, gov *governor.Governor, gate *oversight.Gate, registry *capability.Registry, opts ...Option) *Runner {
	r := &Runner{
		providers:      providers,
		governor:       gov,
		gate:           gate,
		registry:       registry,
		policy:         capability.DefaultDepartmentPolicy(),
		abort:          NewAbortFlag(),
		emitter:        core.NoopEventEmitter{},
		tracer:         otel.Tracer("aegis/runner"),
		maxTurns:       defaultMaxTurns,
		pruneThreshold: defaultPruneThreshold,
		tokenRatio:     defaultTokenRatio,
		maxTaskBytes:   defaultMaxTaskBytes,
		maxSpawnDepth:  defaultMaxSpawnDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Abort trips the process-wide abort flag.
func (r *Runner) Abort() {
	r.abort.Trigger()
}

// Run executes the turn loop for one task. The result is terminal: success
// with text output, a typed error, or a loop-limit failure.
func (r *Runner) Run(ctx context.Context, agent *core.Agent, message string, opts *RunOptions) RunResult {
	if opts == nil {
		opts = &RunOptions{}
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := r.tracer.Start(ctx, "runner.run",
		trace.WithAttributes(
			attribute.String("agent.id", agent.ID),
			attribute.String("agent.department", agent.Department),
			attribute.String("model", agent.Config.Model),
		))
	defer span.End()

	slog.InfoContext(ctx, "runner.run.start",
		slog.String("run_id", runID),
		slog.String("agent_id", agent.ID),
		slog.Int("depth", opts.Depth))

	result := r.run(ctx, agent, message, opts)

	outcome := "success"
	if !result.Success {
		outcome = string(result.Err.Code)
		agent.SetStatus(core.StatusError)
		if result.Err.Code == errors.CodeAborted {
			agent.SetStatus(core.StatusKilled)
		}
	} else {
		agent.SetStatus(core.StatusIdle)
	}
	if m, err := telemetry.Metrics(); err == nil {
		m.RecordRun(ctx, outcome)
		if result.Err != nil {
			m.RecordError(ctx, result.Err, "runner")
		}
	}
	r.emitter.Emit(ctx, core.NewEvent(core.EventAgentStatus, agent.ID, runID, map[string]any{
		"status":  string(agent.GetStatus()),
		"outcome": outcome,
	}))
	slog.InfoContext(ctx, "runner.run.done",
		slog.String("run_id", runID),
		slog.String("outcome", outcome),
		slog.Int("turns", result.Turns))
	return result
}

func fail(err *errors.AegisError, turns int, usage llm.Usage) RunResult {
	return RunResult{Success: false, Err: err, Turns: turns, Usage: usage}
}

func (r *Runner) run(ctx context.Context, agent *core.Agent, message string, opts *RunOptions) RunResult {
	if verr := r.validateInput(agent, message, opts); verr != nil {
		return fail(verr, 0, llm.Usage{})
	}

	provider, err := r.providers(agent.Config)
	if err != nil {
		return fail(errors.New(errors.CodeConfig, "provider unavailable", err).
			WithContext("provider", agent.Config.Provider), 0, llm.Usage{})
	}

	agent.SetStatus(core.StatusRunning)
	history := []llm.Message{{Role: llm.RoleUser, Content: message}}
	var usage llm.Usage

	for turn := 1; turn <= r.maxTurns; turn++ {
		if halted := r.haltCheck(ctx); halted != nil {
			return fail(halted, turn-1, usage)
		}

		if _, terr := r.governor.Throttle(ctx, agent.Config); terr != nil {
			return fail(errors.AsAegisError(terr), turn-1, usage)
		}

		var overBudget bool
		history, overBudget = pruneHistory(history, agent.Config.TPM, r.pruneThreshold, r.tokenRatio)
		if overBudget {
			slog.WarnContext(ctx, "runner.history.over_budget",
				slog.String("agent_id", agent.ID),
				slog.Int("messages", len(history)))
		}

		if halted := r.haltCheck(ctx); halted != nil {
			return fail(halted, turn-1, usage)
		}

		tools := r.visibleTools(agent, opts)
		opts.progress("generating", map[string]any{"turn": turn})

		resp, gerr := provider.Chat(ctx, llm.ChatRequest{
			Model:       agent.Config.Model,
			Messages:    history,
			Tools:       capability.LLMTools(tools),
			Temperature: agent.Config.Temperature,
		})
		if gerr != nil {
			if isRateLimitError(gerr) {
				r.governor.RecordBackoff(ctx, agent.Config.Model, 0)
				return fail(errors.New(errors.CodeRateLimit, "provider throttled", gerr).
					WithContext("model", agent.Config.Model), turn, usage)
			}
			return fail(errors.New(errors.CodeRuntime, "generation failed", gerr), turn, usage)
		}

		usage.Add(resp.Usage)
		r.governor.RecordUsage(agent.Config.Model, resp.Usage.TotalTokens)
		agent.AddUsage(resp.Usage.TotalTokens,
			rates.Cost(agent.Config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens))
		if m, merr := telemetry.Metrics(); merr == nil {
			m.RecordTurn(ctx, agent.ID)
		}

		// Generation can take long; re-check the halt signals before the
		// response is acted on, so an abort raised mid-generation never
		// reaches the gate.
		if halted := r.haltCheck(ctx); halted != nil {
			return fail(halted, turn, usage)
		}

		if len(resp.ToolCalls) == 0 {
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			opts.progress("finalizing", map[string]any{"turn": turn})
			runID, _ := core.RunID(ctx)
			r.emitter.Emit(ctx, core.NewEvent(core.EventAgentMessage, agent.ID, runID, map[string]any{
				"content": resp.Content,
			}))
			return RunResult{Success: true, Output: resp.Content, Turns: turn, Usage: usage}
		}

		tc := resp.ToolCalls[0]
		params := parseArguments(tc.Function.Arguments)
		call := core.NewToolCall(agent.ID, agent.Department, opts.ClusterID,
			tc.Function.Name, params, resp.Content)

		opts.progress("executing "+call.Skill, map[string]any{"turn": turn, "skill": call.Skill})
		approved, aerr := r.authorize(ctx, agent, call)
		if aerr != nil {
			return fail(aerr, turn, usage)
		}
		if !approved {
			r.gate.RecordAction(ctx, call, oversight.StatusRejected, nil)
			if r.gate.Killed() {
				return fail(errors.New(errors.CodeAborted, "engine killed", nil).
					WithContext("reason", r.gate.KillReason()), turn, usage)
			}
			return fail(errors.New(errors.CodeOversightRejection,
				fmt.Sprintf("tool call %q rejected", call.Skill), nil), turn, usage)
		}

		if halted := r.haltCheck(ctx); halted != nil {
			return fail(halted, turn, usage)
		}

		agent.SetStatus(core.StatusRunning)
		execResult, execErr := r.execute(ctx, agent, opts, call)
		if execErr != nil {
			r.gate.RecordAction(ctx, call, oversight.StatusApproved,
				&core.ActionResult{Success: false, Error: execErr.Error()})
			return fail(execErr, turn, usage)
		}
		r.gate.RecordAction(ctx, call, oversight.StatusApproved, execResult)

		history = append(history,
			llm.Message{
				Role:    llm.RoleAssistant,
				Content: resp.Content,
				ToolCalls: []llm.ToolCall{{
					ID:       tc.ID,
					Type:     llm.ToolTypeFunction,
					Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				}},
			},
			llm.Message{
				Role:       llm.RoleTool,
				Content:    marshalResult(execResult),
				ToolCallID: tc.ID,
			},
		)
	}

	return fail(errors.New(errors.CodeRuntime, "loop limit reached", nil).
		WithContext("max_turns", r.maxTurns), r.maxTurns, usage)
}

// haltCheck inspects both halt signals and the context.
func (r *Runner) haltCheck(ctx context.Context) *errors.AegisError {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.CodeAborted, "context cancelled", err)
	}
	if r.abort.Aborted() {
		return errors.New(errors.CodeAborted, "global abort", nil)
	}
	if r.gate.Killed() {
		return errors.New(errors.CodeAborted, "engine killed", nil).
			WithContext("reason", r.gate.KillReason())
	}
	return nil
}

// authorize routes the call through the gate and waits for the decision.
// The wait is unbounded unless the context ends.
func (r *Runner) authorize(ctx context.Context, agent *core.Agent, call core.ToolCall) (bool, *errors.AegisError) {
	agent.SetStatus(core.StatusWaiting)
	ch := r.gate.Submit(ctx, call)
	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		return false, errors.New(errors.CodeAborted, "approval wait cancelled", ctx.Err())
	}
}

// execute resolves and runs the approved skill. Executor failures become a
// failed result and the loop continues; a call naming a skill the registry
// does not hold terminates the run.
func (r *Runner) execute(ctx context.Context, agent *core.Agent, opts *RunOptions, call core.ToolCall) (*core.ActionResult, *errors.AegisError) {
	ec := capability.ExecContext{
		Agent:     agent,
		ClusterID: opts.ClusterID,
		Depth:     opts.Depth,
		Lineage:   opts.Lineage,
	}
	// Nested calls re-enter the gate with the same identity.
	ec.CallTool = func(nctx context.Context, skill string, params map[string]any, description string) (*core.ActionResult, error) {
		nested := core.NewToolCall(agent.ID, agent.Department, opts.ClusterID, skill, params, description)
		approved, aerr := r.authorize(nctx, agent, nested)
		if aerr != nil {
			return nil, aerr
		}
		if !approved {
			r.gate.RecordAction(nctx, nested, oversight.StatusRejected, nil)
			return nil, errors.New(errors.CodeOversightRejection,
				fmt.Sprintf("nested tool call %q rejected", skill), nil)
		}
		res, rerr := r.registry.Run(nctx, skill, params, ec)
		if rerr != nil {
			return nil, rerr
		}
		r.gate.RecordAction(nctx, nested, oversight.StatusApproved, res)
		return res, nil
	}

	res, err := r.registry.Run(ctx, call.Skill, call.Params, ec)
	if err != nil {
		slog.WarnContext(ctx, "runner.skill.unresolvable",
			slog.String("skill", call.Skill),
			slog.String("error", err.Error()))
		return nil, errors.AsAegisError(err)
	}
	return res, nil
}

// visibleTools applies the department filter and, in safe mode, strips
// side-effecting skills.
func (r *Runner) visibleTools(agent *core.Agent, opts *RunOptions) []*capability.Skill {
	skills := r.policy.VisibleSkills(r.registry, agent.Department)
	if !r.safeMode && !opts.SafeMode {
		return skills
	}
	kept := skills[:0:0]
	for _, s := range skills {
		if !s.Unsafe {
			kept = append(kept, s)
		}
	}
	return kept
}

func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return map[string]any{"_raw": raw}
	}
	return params
}

func marshalResult(res *core.ActionResult) string {
	if res == nil {
		return `{"success":false}`
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"error":"unserializable result"}`, res.Success)
	}
	return string(data)
}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "413") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}
