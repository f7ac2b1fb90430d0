package oversight

import (
	"fmt"
	"testing"
	"time"

	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
)

func unsafeCall(skill string) core.ToolCall {
	return core.NewToolCall("a1", "Operations", "", skill, map[string]any{"cmd": "ls"}, "test call")
}

func TestSubmitSafeSkillNeverPending(t *testing.T) {
	g := NewGate()

	ch := g.Submit(t.Context(), core.NewToolCall("a1", "Operations", "", "plan_strategy", nil, ""))
	select {
	case approved := <-ch:
		if !approved {
			t.Error("safe skill should be auto-approved")
		}
	case <-time.After(time.Second):
		t.Fatal("safe skill submit must resolve immediately")
	}
	if len(g.Pending()) != 0 {
		t.Errorf("pending = %d, want 0", len(g.Pending()))
	}
}

func TestSubmitDepartmentSafeSkill(t *testing.T) {
	g := NewGate()

	ch := g.Submit(t.Context(), core.NewToolCall("a1", "Research", "", "fetch_url", nil, ""))
	if approved := <-ch; !approved {
		t.Error("fetch_url is safe for Research")
	}

	// Same skill from another department must queue.
	g.Submit(t.Context(), core.NewToolCall("a2", "Operations", "", "fetch_url", nil, ""))
	if len(g.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(g.Pending()))
	}
}

func TestAutoApproveDisabled(t *testing.T) {
	g := NewGate(WithAutoApprove(false))

	g.Submit(t.Context(), core.NewToolCall("a1", "Operations", "", "plan_strategy", nil, ""))
	if len(g.Pending()) != 1 {
		t.Error("with auto-approve off, even safe skills queue")
	}
}

func TestDecideApproveAndReject(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	chA := g.Submit(ctx, unsafeCall("execute_shell"))
	chB := g.Submit(ctx, unsafeCall("write_file"))
	pending := g.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := g.Decide(ctx, pending[0].ID, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := g.Decide(ctx, pending[1].ID, false); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if approved := <-chA; !approved {
		t.Error("first entry should resolve approved")
	}
	if approved := <-chB; approved {
		t.Error("second entry should resolve rejected")
	}
	if len(g.Pending()) != 0 {
		t.Error("queue should be empty after decisions")
	}
}

func TestDecideUnknownIDIsNoop(t *testing.T) {
	g := NewGate()
	ctx := t.Context()
	g.Submit(ctx, unsafeCall("execute_shell"))

	err := g.Decide(ctx, "no-such-id", true)
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if len(g.Pending()) != 1 {
		t.Error("pending queue must be untouched")
	}
	if len(g.Ledger()) != 0 {
		t.Error("ledger must be untouched")
	}
}

func TestDecideTwiceSecondIsNoop(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	g.Submit(ctx, unsafeCall("execute_shell"))
	id := g.Pending()[0].ID

	if err := g.Decide(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	if err := g.Decide(ctx, id, false); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("second decide should report NOT_FOUND, got %v", err)
	}
}

func TestKillResolvesAllPendingFalse(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	var chans []<-chan bool
	for i := 0; i < 5; i++ {
		chans = append(chans, g.Submit(ctx, unsafeCall("execute_shell")))
	}

	g.Kill(ctx, "operator stop")

	for i, ch := range chans {
		select {
		case approved := <-ch:
			if approved {
				t.Errorf("entry %d resolved approved after kill", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("entry %d did not resolve after kill", i)
		}
	}
	if len(g.Pending()) != 0 {
		t.Error("pending must be empty immediately after kill")
	}
	if !g.Killed() || g.KillReason() != "operator stop" {
		t.Error("kill flag and reason must be set")
	}

	// Killed gate refuses new submissions without queueing.
	if approved := <-g.Submit(ctx, unsafeCall("execute_shell")); approved {
		t.Error("submit after kill must resolve false")
	}
}

func TestResetReArms(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	g.Kill(ctx, "stop")
	g.Reset(ctx)
	if g.Killed() {
		t.Fatal("gate should be re-armed")
	}
	g.Submit(ctx, unsafeCall("execute_shell"))
	if len(g.Pending()) != 1 {
		t.Error("submit should queue again after reset")
	}
}

func TestLedgerFIFOCap(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	for i := 0; i < 1100; i++ {
		call := unsafeCall("execute_shell")
		call.Description = fmt.Sprintf("entry-%d", i)
		g.RecordAction(ctx, call, StatusApproved, nil)
	}

	ledger := g.Ledger()
	if len(ledger) != 1000 {
		t.Fatalf("ledger size = %d, want 1000", len(ledger))
	}
	// The first 100 are evicted; the 101st inserted survives as oldest.
	if got := ledger[0].ToolCall.Description; got != "entry-100" {
		t.Errorf("oldest = %q, want entry-100", got)
	}
	if got := ledger[999].ToolCall.Description; got != "entry-1099" {
		t.Errorf("newest = %q, want entry-1099", got)
	}
}

func TestRecordActionEmitsHandoff(t *testing.T) {
	emitter := &captureEmitter{}
	g := NewGate(WithEmitter(emitter))
	ctx := t.Context()

	result := &core.ActionResult{
		Success: true,
		Handoff: &core.Handoff{SourceCluster: "c1", TargetCluster: "c2", Payload: map[string]any{"k": "v"}},
	}
	g.RecordAction(ctx, unsafeCall("share_finding"), StatusApproved, result)

	if !emitter.has(core.EventOversightHandoff) {
		t.Error("expected handoff event")
	}
	if !emitter.has(core.EventOversightLedger) {
		t.Error("expected ledger event")
	}
}

func TestSummaryCounts(t *testing.T) {
	g := NewGate()
	ctx := t.Context()

	<-g.Submit(ctx, core.NewToolCall("a1", "Operations", "", "plan_strategy", nil, "")) // auto-approved
	g.Submit(ctx, unsafeCall("execute_shell"))
	id := g.Pending()[0].ID
	g.Decide(ctx, id, false)
	g.Submit(ctx, unsafeCall("write_file")) // stays pending

	s := g.GetSummary()
	if s.Approved != 1 || s.Rejected != 1 || s.Pending != 1 || s.Total != 3 {
		t.Errorf("summary = %+v", s)
	}
}
