// Package oversight is the sole path through which a tool call becomes
// authorized to run: a pending-approval queue with one-shot completion
// channels, a bounded FIFO audit ledger, and a process-wide kill switch.
package oversight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/telemetry"
)

// EntryStatus is the lifecycle state of a pending entry.
type EntryStatus string

const (
	StatusPending  EntryStatus = "pending"
	StatusApproved EntryStatus = "approved"
	StatusRejected EntryStatus = "rejected"
)

// Entry is a tool call awaiting a decision. It exists only between
// submission and decision (or kill).
type Entry struct {
	ID        string        `json:"id"`
	ToolCall  core.ToolCall `json:"tool_call"`
	Status    EntryStatus   `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// LedgerEntry is an append-only audit record of a decided action.
type LedgerEntry struct {
	ID        string             `json:"id"`
	ToolCall  core.ToolCall      `json:"tool_call"`
	Decision  EntryStatus        `json:"decision"`
	Result    *core.ActionResult `json:"result,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Summary holds the gate's aggregate counts.
type Summary struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

const defaultLedgerCap = 1000

// Gate is shared by all agents in the process. All methods are safe for
// concurrent use; Kill is linearizable with respect to Submit.
type Gate struct {
	mu sync.Mutex

	killed     bool
	killReason string

	autoApprove bool
	policy      *SafePolicy

	pending map[string]*Entry
	order   []string // pending ids in submission order
	waiters map[string]chan bool

	ledger    []LedgerEntry
	ledgerCap int

	approved int
	rejected int

	emitter core.EventEmitter
}

// Option configures a Gate.
type Option func(*Gate)

// WithLedgerCap overrides the 1000-entry ledger bound.
func WithLedgerCap(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.ledgerCap = n
		}
	}
}

// WithAutoApprove toggles the safe-skill auto-approval path.
func WithAutoApprove(enabled bool) Option {
	return func(g *Gate) { g.autoApprove = enabled }
}

// WithPolicy sets the safe-skill policy table.
func WithPolicy(p *SafePolicy) Option {
	return func(g *Gate) {
		if p != nil {
			g.policy = p
		}
	}
}

// WithEmitter sets the observer sink for gate events.
func WithEmitter(e core.EventEmitter) Option {
	return func(g *Gate) {
		if e != nil {
			g.emitter = e
		}
	}
}

// NewGate creates an armed gate with an empty ledger.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		autoApprove: true,
		policy:      DefaultSafePolicy(),
		pending:     make(map[string]*Entry),
		waiters:     make(map[string]chan bool),
		ledgerCap:   defaultLedgerCap,
		emitter:     core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit routes a tool call through the gate. The returned channel yields
// exactly one value: true when approved, false when rejected or killed.
// Safe skills resolve immediately without entering the pending queue; the
// wait for a human decision is otherwise unbounded.
func (g *Gate) Submit(ctx context.Context, call core.ToolCall) <-chan bool {
	g.mu.Lock()

	if g.killed {
		g.mu.Unlock()
		return resolved(false)
	}

	if g.autoApprove && g.policy.IsSafe(call.Department, call.Skill) {
		g.approved++
		g.mu.Unlock()
		slog.DebugContext(ctx, "oversight.auto_approve",
			slog.String("skill", call.Skill),
			slog.String("department", call.Department))
		if m, err := telemetry.Metrics(); err == nil {
			m.RecordDecision(ctx, "auto_approved")
		}
		return resolved(true)
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		ToolCall:  call,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	ch := make(chan bool, 1)
	g.pending[entry.ID] = entry
	g.order = append(g.order, entry.ID)
	g.waiters[entry.ID] = ch
	g.mu.Unlock()

	slog.InfoContext(ctx, "oversight.submit",
		slog.String("entry_id", entry.ID),
		slog.String("skill", call.Skill),
		slog.String("agent_id", call.AgentID))
	g.emitter.Emit(ctx, core.NewEvent(core.EventOversightNew, call.AgentID, call.ClusterID, map[string]any{
		"entry_id": entry.ID,
		"skill":    call.Skill,
		"params":   call.Params,
	}))

	return ch
}

// Decide resolves a pending entry. Unknown ids return NOT_FOUND and leave
// the queue and ledger untouched; deciding an id twice is therefore a
// no-op the second time.
func (g *Gate) Decide(ctx context.Context, id string, approved bool) error {
	g.mu.Lock()
	entry, ok := g.pending[id]
	if !ok {
		g.mu.Unlock()
		return errors.New(errors.CodeNotFound, "no pending entry", nil).WithContext("entry_id", id)
	}

	if approved {
		entry.Status = StatusApproved
		g.approved++
	} else {
		entry.Status = StatusRejected
		g.rejected++
	}
	delete(g.pending, id)
	g.removeFromOrder(id)
	ch := g.waiters[id]
	delete(g.waiters, id)
	g.mu.Unlock()

	if ch != nil {
		ch <- approved
	}

	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	slog.InfoContext(ctx, "oversight.decide",
		slog.String("entry_id", id),
		slog.String("outcome", outcome))
	if m, err := telemetry.Metrics(); err == nil {
		m.RecordDecision(ctx, outcome)
	}
	g.emitter.Emit(ctx, core.NewEvent(core.EventOversightDecided, entry.ToolCall.AgentID, entry.ToolCall.ClusterID, map[string]any{
		"entry_id": id,
		"approved": approved,
		"skill":    entry.ToolCall.Skill,
	}))
	return nil
}

// Kill sets the kill flag, rejects every pending entry, and empties the
// queue. Once killed, Submit resolves false until Reset.
func (g *Gate) Kill(ctx context.Context, reason string) {
	g.mu.Lock()
	g.killed = true
	g.killReason = reason
	dropped := make([]chan bool, 0, len(g.waiters))
	for id, ch := range g.waiters {
		dropped = append(dropped, ch)
		delete(g.waiters, id)
	}
	n := len(g.pending)
	g.pending = make(map[string]*Entry)
	g.order = nil
	g.rejected += n
	g.mu.Unlock()

	for _, ch := range dropped {
		ch <- false
	}

	slog.WarnContext(ctx, "oversight.kill",
		slog.String("reason", reason),
		slog.Int("dropped", n))
	if m, err := telemetry.Metrics(); err == nil {
		m.RecordDecision(ctx, "killed")
	}
	g.emitter.Emit(ctx, core.NewEvent(core.EventEngineKill, "", "", map[string]any{
		"reason":  reason,
		"dropped": n,
	}))
}

// Reset re-arms a killed gate.
func (g *Gate) Reset(ctx context.Context) {
	g.mu.Lock()
	g.killed = false
	g.killReason = ""
	g.mu.Unlock()
	slog.InfoContext(ctx, "oversight.reset")
}

// Killed reports whether the kill switch is set.
func (g *Gate) Killed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killed
}

// KillReason returns the reason passed to the last Kill.
func (g *Gate) KillReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killReason
}

// RecordAction appends a ledger entry, evicting the oldest entries past
// the cap. A result carrying a handoff additionally notifies observers of
// the cross-cluster forward.
func (g *Gate) RecordAction(ctx context.Context, call core.ToolCall, decision EntryStatus, result *core.ActionResult) LedgerEntry {
	entry := LedgerEntry{
		ID:        uuid.NewString(),
		ToolCall:  call,
		Decision:  decision,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}

	g.mu.Lock()
	g.ledger = append(g.ledger, entry)
	evicted := 0
	if over := len(g.ledger) - g.ledgerCap; over > 0 {
		g.ledger = g.ledger[over:]
		evicted = over
	}
	g.mu.Unlock()

	if m, err := telemetry.Metrics(); err == nil {
		m.RecordLedgerEviction(ctx, int64(evicted))
	}
	g.emitter.Emit(ctx, core.NewEvent(core.EventOversightLedger, call.AgentID, call.ClusterID, map[string]any{
		"ledger_id": entry.ID,
		"skill":     call.Skill,
		"decision":  string(decision),
	}))

	if result != nil && result.Handoff != nil {
		slog.InfoContext(ctx, "oversight.handoff",
			slog.String("source", result.Handoff.SourceCluster),
			slog.String("target", result.Handoff.TargetCluster))
		g.emitter.Emit(ctx, core.NewEvent(core.EventOversightHandoff, call.AgentID, call.ClusterID, map[string]any{
			"source_cluster": result.Handoff.SourceCluster,
			"target_cluster": result.Handoff.TargetCluster,
			"payload":        result.Handoff.Payload,
		}))
	}

	return entry
}

// Pending returns the pending entries in submission order.
func (g *Gate) Pending() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, 0, len(g.order))
	for _, id := range g.order {
		if e, ok := g.pending[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Ledger returns a read-only copy of the audit trail, oldest first.
func (g *Gate) Ledger() []LedgerEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]LedgerEntry, len(g.ledger))
	copy(out, g.ledger)
	return out
}

// GetSummary returns the gate's aggregate counts.
func (g *Gate) GetSummary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Summary{
		Pending:  len(g.pending),
		Approved: g.approved,
		Rejected: g.rejected,
		Total:    len(g.pending) + g.approved + g.rejected,
	}
}

func (g *Gate) removeFromOrder(id string) {
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return
		}
	}
}

func resolved(v bool) <-chan bool {
	ch := make(chan bool, 1)
	ch <- v
	return ch
}
