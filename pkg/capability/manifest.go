package capability

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/aegis/pkg/core"
)

// Manifest declares external skills in YAML. Each entry becomes a
// registered skill whose executor shells out to the declared command with
// the parameters rendered as NAME=value environment variables.
type Manifest struct {
	Skills []ManifestSkill `yaml:"skills"`
}

// ManifestSkill is one declared external skill.
type ManifestSkill struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
	Command     string         `yaml:"command"`
	Unsafe      bool           `yaml:"unsafe"`
}

// LoadManifest parses a YAML skill manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest parses YAML manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse skill manifest: %w", err)
	}
	for i, s := range m.Skills {
		if s.Name == "" {
			return nil, fmt.Errorf("skill manifest entry %d has no name", i)
		}
		if s.Command == "" {
			return nil, fmt.Errorf("skill %q has no command", s.Name)
		}
	}
	return &m, nil
}

// RegisterManifest installs every manifest skill into the registry.
func RegisterManifest(r *Registry, m *Manifest) error {
	for _, ms := range m.Skills {
		skill := &Skill{
			Name:        ms.Name,
			Description: ms.Description,
			Schema:      ms.Schema,
			Unsafe:      ms.Unsafe,
			Execute:     commandExecutor(ms.Command),
		}
		if err := r.Register(skill); err != nil {
			return err
		}
	}
	return nil
}

func commandExecutor(command string) Executor {
	return func(ctx context.Context, params map[string]any, _ ExecContext) (*core.ActionResult, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Env = append(os.Environ(), paramEnv(params)...)
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
}

func paramEnv(params map[string]any) []string {
	env := make([]string, 0, len(params))
	for k, v := range params {
		env = append(env, fmt.Sprintf("PARAM_%s=%v", strings.ToUpper(k), v))
	}
	return env
}
