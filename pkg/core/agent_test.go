package core

import (
	"sync"
	"testing"
)

func TestAddUsageConcurrent(t *testing.T) {
	agent := &Agent{ID: "a1", Department: "Operations"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent.AddUsage(10, 0.01)
		}()
	}
	wg.Wait()

	_, tokens, cost := agent.Snapshot()
	if tokens != 500 {
		t.Errorf("tokens = %d, want 500", tokens)
	}
	if cost < 0.499 || cost > 0.501 {
		t.Errorf("cost = %f, want ~0.5", cost)
	}
}

func TestNewToolCallFields(t *testing.T) {
	tc := NewToolCall("a1", "Operations", "c1", "fetch_url", map[string]any{"url": "https://example.com"}, "fetch a page")

	if tc.ID == "" {
		t.Error("id must be assigned")
	}
	if tc.Timestamp.IsZero() {
		t.Error("timestamp must be assigned")
	}
	if tc.Skill != "fetch_url" || tc.Department != "Operations" {
		t.Errorf("unexpected fields: %+v", tc)
	}
}

func TestEnsureRunIDStable(t *testing.T) {
	ctx, id := EnsureRunID(t.Context())
	if id == "" {
		t.Fatal("expected generated run id")
	}
	_, again := EnsureRunID(ctx)
	if again != id {
		t.Errorf("run id changed: %s vs %s", id, again)
	}
}
