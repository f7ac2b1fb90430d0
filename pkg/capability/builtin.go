package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jllopis/aegis/pkg/core"
)

const maxFetchBytes = 256 * 1024

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func paramString(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// RegisterBuiltins installs the shipped skill set. The recursive
// spawn_subagent skill is installed separately by the runner, which owns
// the re-entry path.
func RegisterBuiltins(r *Registry) error {
	builtins := []*Skill{
		{
			Name:        "plan_strategy",
			Description: "Reason step by step about the current objective and produce a plan before acting.",
			Schema: objectSchema(map[string]any{
				"thought": stringProp("The reasoning or plan for the next steps."),
			}, "thought"),
			Execute: func(_ context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
				return &core.ActionResult{
					Success: true,
					Output:  map[string]any{"plan": paramString(params, "thought")},
				}, nil
			},
		},
		{
			Name:        "search_knowledge",
			Description: "Look up a topic in the shared knowledge base.",
			Schema: objectSchema(map[string]any{
				"query": stringProp("The search query."),
			}, "query"),
			Execute: func(_ context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
				// Lookup backend is provided by the embedding application;
				// the shipped executor answers with an empty result set.
				return &core.ActionResult{
					Success: true,
					Output:  map[string]any{"query": paramString(params, "query"), "results": []any{}},
				}, nil
			},
		},
		{
			Name:        "share_finding",
			Description: "Share a key finding or data point with the rest of the swarm.",
			Schema: objectSchema(map[string]any{
				"topic":          stringProp("Short label for the finding."),
				"finding":        stringProp("The detailed finding."),
				"target_cluster": stringProp("Optional cluster id to forward the finding to."),
			}, "topic", "finding"),
			Execute: func(_ context.Context, params map[string]any, ec ExecContext) (*core.ActionResult, error) {
				result := &core.ActionResult{
					Success: true,
					Output: map[string]any{
						"topic":   paramString(params, "topic"),
						"finding": paramString(params, "finding"),
					},
				}
				if target := paramString(params, "target_cluster"); target != "" && target != ec.ClusterID {
					result.Handoff = &core.Handoff{
						SourceCluster: ec.ClusterID,
						TargetCluster: target,
						Payload: map[string]any{
							"topic":   paramString(params, "topic"),
							"finding": paramString(params, "finding"),
						},
					}
				}
				return result, nil
			},
		},
		{
			Name:        "complete_mission",
			Description: "Signal that the mission objective has been achieved, with a final report.",
			Schema: objectSchema(map[string]any{
				"final_report": stringProp("Detailed summary of all work done and final results."),
			}, "final_report"),
			Execute: func(_ context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
				return &core.ActionResult{
					Success: true,
					Output:  map[string]any{"final_report": paramString(params, "final_report"), "completed": true},
				}, nil
			},
		},
		{
			Name:        "fetch_url",
			Description: "Fetch the body of an HTTP(S) URL, truncated to 256 KiB.",
			Schema: objectSchema(map[string]any{
				"url": stringProp("The absolute URL to fetch."),
			}, "url"),
			Unsafe:  true,
			Execute: fetchURL,
		},
		{
			Name:        "read_file",
			Description: "Read a UTF-8 text file from the workspace.",
			Schema: objectSchema(map[string]any{
				"path": stringProp("Path of the file to read."),
			}, "path"),
			Unsafe:  true,
			Execute: readFile,
		},
		{
			Name:        "write_file",
			Description: "Write text content to a file in the workspace, creating parent directories.",
			Schema: objectSchema(map[string]any{
				"path":    stringProp("Path of the file to write."),
				"content": stringProp("The full file content."),
			}, "path", "content"),
			Unsafe:  true,
			Execute: writeFile,
		},
		{
			Name:        "execute_shell",
			Description: "Run a shell command and capture its combined output.",
			Schema: objectSchema(map[string]any{
				"command": stringProp("The shell command to run."),
			}, "command"),
			Unsafe:  true,
			Execute: executeShell,
		},
		{
			Name:        "run_workflow",
			Description: "Execute a named multi-step workflow by invoking its skills in order.",
			Schema: objectSchema(map[string]any{
				"steps": map[string]any{
					"type":        "array",
					"description": "Ordered skill invocations, each {skill, params}.",
					"items":       map[string]any{"type": "object"},
				},
			}, "steps"),
			Unsafe:  true,
			Execute: runWorkflow,
		},
	}

	for _, s := range builtins {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func fetchURL(ctx context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
	url := paramString(params, "url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must be http(s): %q", url)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}
	return &core.ActionResult{
		Success: resp.StatusCode < 400,
		Output: map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		},
	}, nil
}

func readFile(_ context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
	data, err := os.ReadFile(paramString(params, "path"))
	if err != nil {
		return nil, err
	}
	return &core.ActionResult{
		Success: true,
		Output:  map[string]any{"content": string(data)},
	}, nil
}

func writeFile(_ context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
	path := paramString(params, "path")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(paramString(params, "content")), 0o644); err != nil {
		return nil, err
	}
	return &core.ActionResult{
		Success: true,
		Output:  map[string]any{"path": path},
	}, nil
}

func executeShell(ctx context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
	command := paramString(params, "command")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	result := &core.ActionResult{
		Success: err == nil,
		Output:  map[string]any{"output": string(out)},
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

// runWorkflow chains skill invocations through the caller's CallTool, so
// every step passes the oversight gate individually.
func runWorkflow(ctx context.Context, params map[string]any, ec ExecContext) (*core.ActionResult, error) {
	steps, _ := params["steps"].([]any)
	if len(steps) == 0 {
		return nil, fmt.Errorf("steps are required")
	}
	if ec.CallTool == nil {
		return nil, fmt.Errorf("workflow execution requires a tool-call context")
	}

	outputs := make([]any, 0, len(steps))
	for i, raw := range steps {
		step, _ := raw.(map[string]any)
		skill := paramString(step, "skill")
		if skill == "" {
			return nil, fmt.Errorf("step %d has no skill", i)
		}
		stepParams, _ := step["params"].(map[string]any)
		res, err := ec.CallTool(ctx, skill, stepParams, fmt.Sprintf("workflow step %d", i+1))
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, map[string]any{"skill": skill, "result": res})
		if !res.Success {
			return &core.ActionResult{
				Success: false,
				Output:  map[string]any{"steps": outputs},
				Error:   fmt.Sprintf("step %d (%s) failed: %s", i+1, skill, res.Error),
			}, nil
		}
	}
	return &core.ActionResult{
		Success: true,
		Output:  map[string]any{"steps": outputs},
	}, nil
}
