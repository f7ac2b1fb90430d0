package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/aegis/pkg/capability"
)

type fakeCaller struct {
	lastName string
	lastArgs map[string]interface{}
	result   *mcp.CallToolResult
	err      error
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.lastName = name
	f.lastArgs = args
	return f.result, f.err
}

func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "web_search",
		Description: "Search the web.",
		InputSchema: mcp.ToolInputSchema{
			Type:     "object",
			Required: []string{"query"},
			Properties: map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func TestAdaptSkillExecutes(t *testing.T) {
	caller := &fakeCaller{
		result: &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "three results"}},
		},
	}
	skill, err := AdaptSkill(searchTool(), caller)
	if err != nil {
		t.Fatal(err)
	}
	if !skill.Unsafe {
		t.Error("mcp skills must be treated as side-effecting")
	}

	res, err := skill.Execute(t.Context(), map[string]any{"query": "golang"}, capability.ExecContext{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Output["content"] != "three results" {
		t.Errorf("result = %+v", res)
	}
	if caller.lastName != "web_search" || caller.lastArgs["query"] != "golang" {
		t.Errorf("call = %s %v", caller.lastName, caller.lastArgs)
	}
}

func TestAdaptSkillValidatesRequired(t *testing.T) {
	skill, err := AdaptSkill(searchTool(), &fakeCaller{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := skill.Execute(t.Context(), map[string]any{}, capability.ExecContext{}); err == nil {
		t.Error("missing required arg must fail")
	}
}

func TestAdaptSkillErrorResult(t *testing.T) {
	caller := &fakeCaller{
		result: &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "upstream broke"}},
		},
	}
	skill, err := AdaptSkill(searchTool(), caller)
	if err != nil {
		t.Fatal(err)
	}
	res, err := skill.Execute(t.Context(), map[string]any{"query": "x"}, capability.ExecContext{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Error != "upstream broke" {
		t.Errorf("result = %+v", res)
	}
}

func TestRegisterTools(t *testing.T) {
	r := capability.NewRegistry()
	err := RegisterTools(r, []mcp.Tool{searchTool()}, &fakeCaller{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("web_search"); !ok {
		t.Error("adapted tool must be registered")
	}

	if err := RegisterTools(r, []mcp.Tool{{}}, &fakeCaller{}); err == nil {
		t.Error("nameless tool must be rejected")
	}
}
