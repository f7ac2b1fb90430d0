package runner

import (
	"encoding/json"

	"github.com/jllopis/aegis/pkg/llm"
)

// estimateTokens prices a message at ceil(serializedLength / ratio):
// the text content plus the serialized structured tool-call data.
func estimateTokens(m llm.Message, ratio int) int {
	if ratio <= 0 {
		ratio = 4
	}
	n := len(m.Content)
	if len(m.ToolCalls) > 0 {
		if data, err := json.Marshal(m.ToolCalls); err == nil {
			n += len(data)
		}
	}
	if n == 0 {
		return 0
	}
	return (n + ratio - 1) / ratio
}

// pruneHistory trims the conversation to at most threshold*tpm estimated
// tokens. Phase 1 drops tool-result messages together with the assistant
// message that triggered them; phase 2 drops anything else except the first
// and last message. Survivor order is preserved. The second return reports
// whether the history is still over target after full pruning; callers flag
// that condition rather than removing an anchor.
func pruneHistory(history []llm.Message, tpm int, threshold float64, ratio int) ([]llm.Message, bool) {
	if tpm <= 0 || len(history) == 0 {
		return history, false
	}

	target := int(float64(tpm) * threshold)
	costs := make([]int, len(history))
	total := 0
	for i, m := range history {
		costs[i] = estimateTokens(m, ratio)
		total += costs[i]
	}
	if total <= target {
		return history, false
	}

	remove := make([]bool, len(history))

	// Phase 1: tool results and their triggering assistant messages.
	for i, m := range history {
		if total <= target {
			break
		}
		if m.Role != llm.RoleTool || remove[i] {
			continue
		}
		remove[i] = true
		total -= costs[i]
		if i > 0 && history[i-1].Role == llm.RoleAssistant && len(history[i-1].ToolCalls) > 0 && !remove[i-1] {
			remove[i-1] = true
			total -= costs[i-1]
		}
	}

	// Phase 2: everything but the anchors, in original order.
	for i := 1; i < len(history)-1 && total > target; i++ {
		if remove[i] {
			continue
		}
		remove[i] = true
		total -= costs[i]
	}

	kept := make([]llm.Message, 0, len(history))
	for i, m := range history {
		if !remove[i] {
			kept = append(kept, m)
		}
	}
	return kept, total > target
}
