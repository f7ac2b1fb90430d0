// Package mcp adapts tools exposed by MCP servers into registry skills, so
// external tools pass the same department filter and oversight gate as the
// built-ins.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/core"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// AdaptSkill wraps one MCP tool as a registry skill. MCP tools are treated
// as side-effecting, so safe mode strips them and no department marks them
// auto-approvable by default.
func AdaptSkill(tool mcp.Tool, caller ToolCaller) (*capability.Skill, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}

	return &capability.Skill{
		Name:        tool.Name,
		Description: tool.Description,
		Schema:      schemaOf(tool),
		Unsafe:      true,
		Execute: func(ctx context.Context, params map[string]any, _ capability.ExecContext) (*core.ActionResult, error) {
			if err := validateRequiredArgs(tool, params); err != nil {
				return nil, err
			}
			result, err := caller.CallTool(ctx, tool.Name, params)
			if err != nil {
				return nil, err
			}
			return toActionResult(result)
		},
	}, nil
}

// RegisterTools adapts and registers every given MCP tool.
func RegisterTools(r *capability.Registry, tools []mcp.Tool, caller ToolCaller) error {
	for _, tool := range tools {
		skill, err := AdaptSkill(tool, caller)
		if err != nil {
			return fmt.Errorf("adapt mcp tool %q: %w", tool.Name, err)
		}
		if err := r.Register(skill); err != nil {
			return err
		}
	}
	return nil
}

func schemaOf(tool mcp.Tool) map[string]any {
	if tool.RawInputSchema != nil {
		var decoded map[string]any
		if err := json.Unmarshal(tool.RawInputSchema, &decoded); err == nil {
			return decoded
		}
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return map[string]any{"type": "object"}
	}
	return decoded
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("mcp tool args: missing required field %q", key)
		}
	}
	return nil
}

func toActionResult(result *mcp.CallToolResult) (*core.ActionResult, error) {
	if result == nil {
		return nil, errors.New("mcp tool result is nil")
	}

	if result.IsError {
		return &core.ActionResult{
			Success: false,
			Error:   extractTextContent(result.Content),
		}, nil
	}

	output := map[string]any{}
	if result.StructuredContent != nil {
		if m, ok := result.StructuredContent.(map[string]any); ok {
			output = m
		} else {
			output["content"] = result.StructuredContent
		}
	} else if text := extractTextContent(result.Content); text != "" {
		output["content"] = text
	}

	return &core.ActionResult{Success: true, Output: output}, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
