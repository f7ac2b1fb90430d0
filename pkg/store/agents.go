package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jllopis/aegis/pkg/core"
)

// SaveAgent upserts an agent row from its current snapshot.
func (s *Store) SaveAgent(ctx context.Context, a *core.Agent) error {
	status, tokens, cost := a.Snapshot()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, role, department, provider, model, status, tokens_used, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			department = excluded.department,
			provider = excluded.provider,
			model = excluded.model,
			status = excluded.status,
			tokens_used = excluded.tokens_used,
			cost_usd = excluded.cost_usd
	`,
		a.ID, a.Name, a.Role, a.Department,
		a.Config.Provider, a.Config.Model,
		string(status), tokens, cost, a.CreatedAt.UTC(),
	)
	return err
}

// LoadAgents returns all persisted agents. Credentials are not stored and
// must be re-bound from configuration.
func (s *Store) LoadAgents(ctx context.Context) ([]*core.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, department, provider, model, status, tokens_used, cost_usd, created_at
		FROM agents ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*core.Agent
	for rows.Next() {
		var (
			a       core.Agent
			status  string
			created sql.NullTime
		)
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Role, &a.Department,
			&a.Config.Provider, &a.Config.Model,
			&status, &a.TokensUsed, &a.CostUSD, &created,
		); err != nil {
			return nil, err
		}
		a.Status = core.AgentStatus(status)
		if created.Valid {
			a.CreatedAt = created.Time
		} else {
			a.CreatedAt = time.Time{}
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}
