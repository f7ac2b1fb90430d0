package store

import (
	"strings"
	"testing"
	"time"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/oversight"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadAgents(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	agent := &core.Agent{
		ID:         "a1",
		Name:       "Analyst",
		Role:       "analyst",
		Department: "Research",
		Config:     core.ModelConfig{Provider: "mock", Model: "mock-model"},
		Status:     core.StatusIdle,
		CreatedAt:  time.Now().UTC(),
	}
	agent.AddUsage(120, 0.004)

	if err := s.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}
	// Upsert keeps a single row.
	agent.SetStatus(core.StatusRunning)
	if err := s.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent upsert: %v", err)
	}

	loaded, err := s.LoadAgents(ctx)
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("agents = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Status != core.StatusRunning || got.TokensUsed != 120 || got.Department != "Research" {
		t.Errorf("loaded = %+v", got)
	}
}

func TestMissionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	m, err := s.CreateMission(ctx, "map the market")
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	if m.Status != MissionPending {
		t.Errorf("status = %s, want pending", m.Status)
	}

	if err := s.UpdateMissionStatus(ctx, m.ID, MissionActive); err != nil {
		t.Fatal(err)
	}
	if err := s.LogStep(ctx, m.ID, "a1", "queried three sources"); err != nil {
		t.Fatal(err)
	}
	if err := s.ShareFinding(ctx, m.ID, "a1", "Competitor", "launched v2 last week"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMission(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != MissionActive {
		t.Errorf("status = %s", got.Status)
	}

	context, err := s.MissionContext(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if context == "" || !containsAll(context, "Competitor", "launched v2 last week") {
		t.Errorf("mission context = %q", context)
	}

	if err := s.UpdateMissionStatus(ctx, "missing", MissionFailed); err == nil {
		t.Error("unknown mission must error")
	}
}

func TestMissionSkillsPersist(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	m, err := s.CreateMission(ctx, "chart the territory")
	if err != nil {
		t.Fatal(err)
	}
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		t.Fatal(err)
	}
	if err := s.InstallMissionSkills(registry, m.ID); err != nil {
		t.Fatal(err)
	}

	ec := capability.ExecContext{Agent: &core.Agent{ID: "a1"}, ClusterID: "c1"}
	res, err := registry.Run(ctx, "share_finding", map[string]any{
		"topic":   "Rivers",
		"finding": "two are navigable",
	}, ec)
	if err != nil || !res.Success {
		t.Fatalf("share_finding: res=%+v err=%v", res, err)
	}
	findings, err := s.Findings(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].Topic != "Rivers" || findings[0].AgentID != "a1" {
		t.Fatalf("findings = %+v", findings)
	}

	res, err = registry.Run(ctx, "complete_mission", map[string]any{
		"final_report": "territory charted",
	}, ec)
	if err != nil || !res.Success {
		t.Fatalf("complete_mission: res=%+v err=%v", res, err)
	}
	got, err := s.GetMission(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != MissionCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestLedgerSinkRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	call := core.NewToolCall("a1", "Operations", "c1", "execute_shell",
		map[string]any{"command": "ls"}, "list files")
	entry := oversight.LedgerEntry{
		ID:        "le-1",
		ToolCall:  call,
		Decision:  oversight.StatusApproved,
		Result:    &core.ActionResult{Success: true, Output: map[string]any{"output": "ok"}},
		Timestamp: time.Now().UTC(),
	}

	if err := s.RecordLedgerEntry(ctx, entry); err != nil {
		t.Fatalf("RecordLedgerEntry: %v", err)
	}
	// Duplicate ids are ignored, not duplicated.
	if err := s.RecordLedgerEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	entries, err := s.LedgerEntries(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("LedgerEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.ToolCall.Skill != "execute_shell" || got.Decision != oversight.StatusApproved {
		t.Errorf("entry = %+v", got)
	}
	if got.Result == nil || !got.Result.Success {
		t.Errorf("result = %+v", got.Result)
	}
	if got.ToolCall.Params["command"] != "ls" {
		t.Errorf("params = %v", got.ToolCall.Params)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
