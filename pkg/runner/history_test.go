package runner

import (
	"strings"
	"testing"

	"github.com/jllopis/aegis/pkg/llm"
)

func TestEstimateTokensCeiling(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"abcd", 1},
		{"abcde", 2},
		{"", 0},
		{"abcdefgh", 2},
	}
	for _, tc := range tests {
		t.Run(tc.content, func(t *testing.T) {
			got := estimateTokens(llm.Message{Role: llm.RoleUser, Content: tc.content}, 4)
			if got != tc.want {
				t.Errorf("estimate(%q) = %d, want %d", tc.content, got, tc.want)
			}
		})
	}
}

func TestEstimateTokensIncludesToolCalls(t *testing.T) {
	plain := estimateTokens(llm.Message{Role: llm.RoleAssistant, Content: "x"}, 4)
	withCall := estimateTokens(llm.Message{
		Role:    llm.RoleAssistant,
		Content: "x",
		ToolCalls: []llm.ToolCall{{
			ID:       "tc-1",
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: "execute_shell", Arguments: `{"command":"ls"}`},
		}},
	}, 4)
	if withCall <= plain {
		t.Errorf("tool-call payload must be priced in: %d <= %d", withCall, plain)
	}
}

func TestPruneNoopUnderTarget(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}
	kept, over := pruneHistory(history, 100000, 0.70, 4)
	if over {
		t.Error("tiny history cannot be over budget")
	}
	if len(kept) != 2 {
		t.Errorf("kept = %d, want 2", len(kept))
	}
}

func TestPruneNoopWithoutBudget(t *testing.T) {
	history := []llm.Message{{Role: llm.RoleUser, Content: strings.Repeat("x", 10000)}}
	kept, over := pruneHistory(history, 0, 0.70, 4)
	if over || len(kept) != 1 {
		t.Error("no tpm budget means no pruning")
	}
}

func TestPrunePhase1DropsToolPairs(t *testing.T) {
	big := strings.Repeat("r", 400)
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "task"},
		{Role: llm.RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{{ID: "1", Type: llm.ToolTypeFunction, Function: llm.FunctionCall{Name: "s"}}}},
		{Role: llm.RoleTool, Content: big, ToolCallID: "1"},
		{Role: llm.RoleAssistant, Content: "summary"},
	}
	// Budget that fits everything except the tool pair.
	kept, over := pruneHistory(history, 80, 0.70, 4)
	if over {
		t.Error("should reach target by dropping the pair")
	}
	for _, m := range kept {
		if m.Role == llm.RoleTool {
			t.Error("tool result should be pruned first")
		}
		if len(m.ToolCalls) > 0 {
			t.Error("triggering assistant message should be pruned with its result")
		}
	}
	if kept[0].Content != "task" || kept[len(kept)-1].Content != "summary" {
		t.Errorf("anchors must survive: %+v", kept)
	}
}

func TestPruneTinyBudgetKeepsAnchors(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: strings.Repeat("a", 100)},
		{Role: llm.RoleAssistant, Content: strings.Repeat("b", 100)},
		{Role: llm.RoleAssistant, Content: strings.Repeat("c", 100)},
		{Role: llm.RoleAssistant, Content: strings.Repeat("d", 100)},
	}
	kept, over := pruneHistory(history, 1, 0.70, 4)
	if len(kept) > 2 {
		t.Errorf("kept %d messages, want at most first and last", len(kept))
	}
	if len(kept) == 0 {
		t.Fatal("anchors must never both be removed")
	}
	if kept[0].Content != history[0].Content {
		t.Error("first anchor must survive")
	}
	if kept[len(kept)-1].Content != history[3].Content {
		t.Error("last anchor must survive")
	}
	if !over {
		t.Error("unreachable budget must be flagged, not silently fixed")
	}
}

func TestPrunePreservesOrder(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: strings.Repeat("x", 200)},
		{Role: llm.RoleUser, Content: "mid"},
		{Role: llm.RoleAssistant, Content: "last"},
	}
	kept, _ := pruneHistory(history, 40, 0.70, 4)
	last := ""
	for _, m := range kept {
		if last == "mid" && m.Content == "first" {
			t.Fatal("order not preserved")
		}
		last = m.Content
	}
	if kept[0].Content != "first" {
		t.Error("first anchor must survive")
	}
}
