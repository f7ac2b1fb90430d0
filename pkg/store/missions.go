package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionPaused    MissionStatus = "paused"
)

// Mission groups related runs under one objective.
type Mission struct {
	ID        string        `json:"id"`
	Objective string        `json:"objective"`
	Status    MissionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Finding is a shared insight attached to a mission.
type Finding struct {
	AgentID   string    `json:"agent_id"`
	Topic     string    `json:"topic"`
	Finding   string    `json:"finding"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateMission inserts a pending mission and returns it.
func (s *Store) CreateMission(ctx context.Context, objective string) (*Mission, error) {
	m := &Mission{
		ID:        uuid.NewString(),
		Objective: objective,
		Status:    MissionPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO missions (id, objective, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.Objective, string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMissionStatus moves a mission through its lifecycle.
func (s *Store) UpdateMissionStatus(ctx context.Context, id string, status MissionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE missions SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("mission %q not found", id)
	}
	return nil
}

// GetMission fetches one mission.
func (s *Store) GetMission(ctx context.Context, id string) (*Mission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, objective, status, created_at, updated_at FROM missions WHERE id = ?
	`, id)
	var (
		m      Mission
		status string
	)
	if err := row.Scan(&m.ID, &m.Objective, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Status = MissionStatus(status)
	return &m, nil
}

// LogStep appends a step record to a mission's history.
func (s *Store) LogStep(ctx context.Context, missionID, agentID, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_steps (mission_id, agent_id, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, missionID, agentID, detail, time.Now().UTC())
	return err
}

// ShareFinding stores a finding against a mission.
func (s *Store) ShareFinding(ctx context.Context, missionID, agentID, topic, finding string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_findings (mission_id, agent_id, topic, finding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, missionID, agentID, topic, finding, time.Now().UTC())
	return err
}

// Findings lists a mission's findings, oldest first.
func (s *Store) Findings(ctx context.Context, missionID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, topic, finding, created_at
		FROM mission_findings WHERE mission_id = ? ORDER BY created_at ASC, id ASC
	`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.AgentID, &f.Topic, &f.Finding, &f.CreatedAt); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// MissionContext joins a mission's findings into the context block agents
// receive at the start of a run.
func (s *Store) MissionContext(ctx context.Context, missionID string) (string, error) {
	findings, err := s.Findings(ctx, missionID)
	if err != nil {
		return "", err
	}
	if len(findings) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Shared findings:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", f.AgentID, f.Topic, f.Finding)
	}
	return b.String(), nil
}
