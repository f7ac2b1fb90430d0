package store

import (
	"context"
	"fmt"

	"github.com/jllopis/aegis/pkg/capability"
	"github.com/jllopis/aegis/pkg/core"
)

// InstallMissionSkills rebinds the mission bookkeeping skills to this
// store: share_finding persists each finding against the mission row, and
// complete_mission records the final report and closes the mission. The
// wrapped executors keep the built-ins' in-run behavior (handoffs
// included).
func (s *Store) InstallMissionSkills(r *capability.Registry, missionID string) error {
	share, ok := r.Get("share_finding")
	if !ok {
		return fmt.Errorf("share_finding is not registered")
	}
	shareBase := share.Execute
	persisting := *share
	persisting.Execute = func(ctx context.Context, params map[string]any, ec capability.ExecContext) (*core.ActionResult, error) {
		res, err := shareBase(ctx, params, ec)
		if err != nil || res == nil || !res.Success {
			return res, err
		}
		topic, _ := params["topic"].(string)
		finding, _ := params["finding"].(string)
		if serr := s.ShareFinding(ctx, missionID, agentID(ec), topic, finding); serr != nil {
			return nil, serr
		}
		return res, nil
	}
	if err := r.Register(&persisting); err != nil {
		return err
	}

	complete, ok := r.Get("complete_mission")
	if !ok {
		return fmt.Errorf("complete_mission is not registered")
	}
	completeBase := complete.Execute
	closing := *complete
	closing.Execute = func(ctx context.Context, params map[string]any, ec capability.ExecContext) (*core.ActionResult, error) {
		res, err := completeBase(ctx, params, ec)
		if err != nil || res == nil || !res.Success {
			return res, err
		}
		report, _ := params["final_report"].(string)
		if serr := s.LogStep(ctx, missionID, agentID(ec), report); serr != nil {
			return nil, serr
		}
		if serr := s.UpdateMissionStatus(ctx, missionID, MissionCompleted); serr != nil {
			return nil, serr
		}
		return res, nil
	}
	return r.Register(&closing)
}

func agentID(ec capability.ExecContext) string {
	if ec.Agent == nil {
		return ""
	}
	return ec.Agent.ID
}
