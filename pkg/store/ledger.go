package store

import (
	"context"
	"encoding/json"

	"github.com/jllopis/aegis/pkg/oversight"
)

// RecordLedgerEntry mirrors a gate ledger entry to SQLite. Unlike the
// in-memory ledger this sink is unbounded; it exists for offline audit.
func (s *Store) RecordLedgerEntry(ctx context.Context, e oversight.LedgerEntry) error {
	params, err := json.Marshal(e.ToolCall.Params)
	if err != nil {
		params = []byte("{}")
	}
	var result []byte
	if e.Result != nil {
		if result, err = json.Marshal(e.Result); err != nil {
			result = nil
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_entries
			(id, agent_id, cluster_id, skill, decision, params_json, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ToolCall.AgentID, e.ToolCall.ClusterID, e.ToolCall.Skill,
		string(e.Decision), string(params), nullableString(result), e.Timestamp,
	)
	return err
}

// LedgerEntries lists persisted ledger rows for an agent, newest first.
// An empty agentID lists all rows.
func (s *Store) LedgerEntries(ctx context.Context, agentID string, limit int) ([]oversight.LedgerEntry, error) {
	query := `
		SELECT id, agent_id, cluster_id, skill, decision, params_json, result_json, created_at
		FROM ledger_entries
	`
	var args []any
	if agentID != "" {
		query += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []oversight.LedgerEntry
	for rows.Next() {
		var (
			e          oversight.LedgerEntry
			decision   string
			paramsJSON string
			resultJSON *string
		)
		if err := rows.Scan(
			&e.ID, &e.ToolCall.AgentID, &e.ToolCall.ClusterID, &e.ToolCall.Skill,
			&decision, &paramsJSON, &resultJSON, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Decision = oversight.EntryStatus(decision)
		if paramsJSON != "" {
			_ = json.Unmarshal([]byte(paramsJSON), &e.ToolCall.Params)
		}
		if resultJSON != nil {
			_ = json.Unmarshal([]byte(*resultJSON), &e.Result)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
