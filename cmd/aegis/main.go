// Command aegis hosts the agent execution control plane: it wires the
// governor, oversight gate, capability registry, and runner, then drives
// tasks from the command line with interactive approvals.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/config"
	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/governor"
	"github.com/jllopis/aegis/pkg/llm"
	"github.com/jllopis/aegis/pkg/oversight"
	"github.com/jllopis/aegis/pkg/runner"
	"github.com/jllopis/aegis/pkg/store"
	"github.com/jllopis/aegis/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := ""
	args := os.Args[1:]
	if len(args) >= 2 && args[0] == "--config" {
		configPath = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig("aegis", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.Endpoint,
			OTLPInsecure: true,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	switch args[0] {
	case "run":
		runTask(ctx, cfg, args[1:])
	case "agents":
		listAgents(ctx, cfg)
	case "ledger":
		showLedger(ctx, cfg, args[1:])
	case "skills":
		listSkills(cfg)
	case "version":
		fmt.Println("aegis", version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: aegis [--config FILE] COMMAND

Commands:
  run        execute a task through the control plane
  agents     list persisted agents
  ledger     show the persisted audit ledger
  skills     list registered skills per department
  version    print the version
  help       show this help`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "aegis:", err)
	os.Exit(1)
}

// buildControlPlane wires the shared services from configuration.
func buildControlPlane(cfg *config.Config) (*runner.Runner, *oversight.Gate, *capability.Registry, error) {
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		return nil, nil, nil, err
	}

	gov := governor.New(
		governor.WithMaxRetries(cfg.Governor.MaxRetries),
		governor.WithDefaultPenalty(time.Duration(cfg.Governor.PenaltySeconds)*time.Second),
	)

	gateOpts := []oversight.Option{
		oversight.WithAutoApprove(cfg.Oversight.AutoApprove),
		oversight.WithLedgerCap(cfg.Oversight.LedgerCap),
	}
	if len(cfg.Oversight.GlobalSafe) > 0 || len(cfg.Oversight.DepartmentSafe) > 0 {
		gateOpts = append(gateOpts, oversight.WithPolicy(
			oversight.NewSafePolicy(cfg.Oversight.GlobalSafe, cfg.Oversight.DepartmentSafe)))
	}
	gate := oversight.NewGate(gateOpts...)

	r := runner.New(providerFactory, gov, gate, registry,
		runner.WithMaxTurns(cfg.Runner.MaxTurns),
		runner.WithPruneThreshold(cfg.Runner.PruneThreshold),
		runner.WithTokenRatio(cfg.Runner.TokenRatio),
		runner.WithMaxTaskBytes(cfg.Runner.MaxTaskBytes),
		runner.WithMaxSpawnDepth(cfg.Runner.MaxSpawnDepth),
		runner.WithSafeMode(cfg.Runner.SafeMode),
	)
	return r, gate, registry, nil
}

// providerFactory resolves model configurations to providers. The shipped
// binary only carries the scripted mock; vendor adapters register here in
// embedding applications.
func providerFactory(mc core.ModelConfig) (llm.Provider, error) {
	switch mc.Provider {
	case "mock", "scripted":
		return llm.NewScriptedMockProvider("Acknowledged. Task complete."), nil
	default:
		return nil, fmt.Errorf("no adapter for provider %q", mc.Provider)
	}
}

func runTask(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	name := fs.String("name", "operator", "agent name")
	department := fs.String("department", "Operations", "agent department")
	providerID := fs.String("provider", "mock", "model provider id")
	model := fs.String("model", "mock-model", "model id")
	message := fs.String("message", "", "the task to run")
	cluster := fs.String("cluster", "", "optional cluster id")
	mission := fs.String("mission", "", "existing mission id to join")
	_ = fs.Parse(args)

	if *message == "" {
		fatal(fmt.Errorf("run requires -message"))
	}

	r, gate, registry, err := buildControlPlane(cfg)
	if err != nil {
		fatal(err)
	}

	var (
		st        *store.Store
		missionID string
	)
	task := *message
	if cfg.Store.Path != "" {
		if st, err = store.Open(cfg.Store.Path); err != nil {
			fatal(err)
		}
		defer st.Close()

		if *mission != "" {
			if _, err := st.GetMission(ctx, *mission); err != nil {
				fatal(err)
			}
			missionID = *mission
		} else {
			m, err := st.CreateMission(ctx, *message)
			if err != nil {
				fatal(err)
			}
			missionID = m.ID
		}
		if err := st.UpdateMissionStatus(ctx, missionID, store.MissionActive); err != nil {
			fatal(err)
		}
		if err := st.InstallMissionSkills(registry, missionID); err != nil {
			fatal(err)
		}
		// Findings shared by earlier runs of the mission lead the task.
		if shared, err := st.MissionContext(ctx, missionID); err == nil && shared != "" {
			task = shared + "\n" + task
		}
	} else if *mission != "" {
		fatal(fmt.Errorf("-mission requires store.path in configuration"))
	}

	agent := &core.Agent{
		ID:         uuid.NewString(),
		Name:       *name,
		Role:       "operator",
		Department: *department,
		Config:     core.ModelConfig{Provider: *providerID, Model: *model},
		Status:     core.StatusIdle,
		CreatedAt:  time.Now().UTC(),
	}
	if limits, ok := cfg.LimitsFor(*model); ok {
		agent.Config.RPM = limits.RPM
		agent.Config.TPM = limits.TPM
		agent.Config.RPD = limits.RPD
		agent.Config.TPD = limits.TPD
	}

	go promptApprovals(ctx, gate)

	result := r.Run(ctx, agent, task, &runner.RunOptions{
		ClusterID: *cluster,
		OnProgress: func(phase string, payload map[string]any) {
			fmt.Fprintf(os.Stderr, "  [%s]\n", phase)
		},
	})

	if st != nil {
		detail := result.Output
		status := store.MissionCompleted
		if !result.Success {
			detail = result.Err.Error()
			status = store.MissionFailed
		}
		_ = st.LogStep(ctx, missionID, agent.ID, detail)
		_ = st.UpdateMissionStatus(ctx, missionID, status)
	}
	if persistRun(ctx, st, agent, gate) != nil {
		fmt.Fprintln(os.Stderr, "warning: run not persisted")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if !result.Success {
		os.Exit(1)
	}
}

// promptApprovals surfaces pending entries on the terminal and feeds the
// operator's y/n back into the gate.
func promptApprovals(ctx context.Context, gate *oversight.Gate) {
	reader := bufio.NewReader(os.Stdin)
	seen := map[string]bool{}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, e := range gate.Pending() {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			fmt.Fprintf(os.Stderr, "approve %s by %s (%v)? [y/N] ",
				e.ToolCall.Skill, e.ToolCall.AgentID, e.ToolCall.Params)
			line, err := reader.ReadString('\n')
			approved := err == nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
			_ = gate.Decide(ctx, e.ID, approved)
		}
	}
}

func persistRun(ctx context.Context, s *store.Store, agent *core.Agent, gate *oversight.Gate) error {
	if s == nil {
		return nil
	}
	if err := s.SaveAgent(ctx, agent); err != nil {
		return err
	}
	for _, e := range gate.Ledger() {
		if err := s.RecordLedgerEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func listAgents(ctx context.Context, cfg *config.Config) {
	if cfg.Store.Path == "" {
		fatal(fmt.Errorf("agents requires store.path in configuration"))
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	agents, err := s.LoadAgents(ctx)
	if err != nil {
		fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tSTATUS\tTOKENS\tCOST")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\n",
			a.ID, a.Name, a.Department, a.Status, a.TokensUsed, a.CostUSD)
	}
	w.Flush()
}

func showLedger(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	agentID := fs.String("agent", "", "filter by agent id")
	limit := fs.Int("limit", 50, "max entries")
	_ = fs.Parse(args)

	if cfg.Store.Path == "" {
		fatal(fmt.Errorf("ledger requires store.path in configuration"))
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	entries, err := s.LedgerEntries(ctx, *agentID, *limit)
	if err != nil {
		fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tAGENT\tSKILL\tDECISION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.ToolCall.AgentID, e.ToolCall.Skill, e.Decision)
	}
	w.Flush()
}

func listSkills(cfg *config.Config) {
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		fatal(err)
	}
	policy := capability.DefaultDepartmentPolicy()

	departments := append(append([]string{}, policy.FullAccess...), policy.Restricted...)
	departments = append(departments, "Other")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEPARTMENT\tSKILLS")
	for _, dept := range departments {
		visible := policy.VisibleSkills(registry, dept)
		names := make([]string, 0, len(visible))
		for _, s := range visible {
			names = append(names, s.Name)
		}
		fmt.Fprintf(w, "%s\t%s\n", dept, strings.Join(names, ", "))
	}
	w.Flush()
}
