// Package rates maps model ids to USD cost per 1000 tokens. The table is
// static; unknown models fall back to a conservative default.
package rates

import "strings"

// Rate holds the per-1k-token prices of a model.
type Rate struct {
	InputUSD  float64
	OutputUSD float64
}

const (
	fallbackInputUSD  = 0.002
	fallbackOutputUSD = 0.006
)

// table is keyed by model-id prefix; the longest matching prefix wins.
var table = map[string]Rate{
	"gpt-4o":            {InputUSD: 0.0025, OutputUSD: 0.01},
	"gpt-4o-mini":       {InputUSD: 0.00015, OutputUSD: 0.0006},
	"gpt-4.1":           {InputUSD: 0.002, OutputUSD: 0.008},
	"o3":                {InputUSD: 0.002, OutputUSD: 0.008},
	"claude-3-5-haiku":  {InputUSD: 0.0008, OutputUSD: 0.004},
	"claude-3-5-sonnet": {InputUSD: 0.003, OutputUSD: 0.015},
	"claude-sonnet-4":   {InputUSD: 0.003, OutputUSD: 0.015},
	"claude-opus-4":     {InputUSD: 0.015, OutputUSD: 0.075},
	"gemini-2.0-flash":  {InputUSD: 0.0001, OutputUSD: 0.0004},
	"gemini-2.5-pro":    {InputUSD: 0.00125, OutputUSD: 0.01},
	"deepseek-chat":     {InputUSD: 0.00027, OutputUSD: 0.0011},
	"llama":             {InputUSD: 0, OutputUSD: 0},
	"qwen":              {InputUSD: 0, OutputUSD: 0},
}

// For returns the rate for a model id, longest prefix match, or the
// fallback rate when no prefix matches.
func For(model string) Rate {
	best := ""
	for prefix := range table {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Rate{InputUSD: fallbackInputUSD, OutputUSD: fallbackOutputUSD}
	}
	return table[best]
}

// Cost computes the USD cost of a generation from its token counts.
func Cost(model string, inputTokens, outputTokens int) float64 {
	r := For(model)
	return float64(inputTokens)/1000*r.InputUSD + float64(outputTokens)/1000*r.OutputUSD
}
