package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedResponse is one pre-defined step of a scripted conversation.
// Either Content or ToolCalls is set; Err short-circuits the call.
type ScriptedResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
	Err       error
}

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence
// of responses. Useful for testing multi-turn interactions where the model
// first requests tools and then produces a final answer.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []ScriptedResponse
	// CallCount tracks how many times Chat has been called
	CallCount int
	// LastRequest retains the most recent request for assertions.
	LastRequest *ChatRequest
}

// NewScriptedMockProvider creates a provider that replays plain text responses.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	p := &ScriptedMockProvider{}
	for _, r := range responses {
		p.Responses = append(p.Responses, ScriptedResponse{Content: r})
	}
	return p
}

// NewScriptedProvider creates a provider that replays arbitrary scripted steps.
func NewScriptedProvider(steps ...ScriptedResponse) *ScriptedMockProvider {
	return &ScriptedMockProvider{Responses: steps}
}

// Chat pops the next scripted response or returns its configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	reqCopy := req
	s.LastRequest = &reqCopy

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	step := s.Responses[0]
	s.Responses = s.Responses[1:]

	if step.Err != nil {
		return nil, step.Err
	}

	usage := Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	if step.Usage != nil {
		usage = *step.Usage
	}

	return &ChatResponse{
		Content:   step.Content,
		ToolCalls: step.ToolCalls,
		Usage:     usage,
	}, nil
}

// AddToolCall appends a scripted step requesting a single tool invocation.
func (s *ScriptedMockProvider) AddToolCall(id, name, arguments string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ScriptedResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: arguments},
		}},
	})
}

// AddResponse appends a plain text step to the queue.
func (s *ScriptedMockProvider) AddResponse(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ScriptedResponse{Content: content})
}

// AddError appends a step that fails with err.
func (s *ScriptedMockProvider) AddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ScriptedResponse{Err: err})
}
