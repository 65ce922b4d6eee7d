package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bvs-orchestrator/bvs/internal/filelock"
	"github.com/bvs-orchestrator/bvs/internal/models"
)

// SectionProgress is one section's persisted execution state, keyed by
// section (task) number inside progress.json.
type SectionProgress struct {
	SectionID   string     `json:"section_id"`
	Status      string     `json:"status"` // pending, in_progress, completed, failed, skipped
	WorkerID    string     `json:"worker_id,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CommitHash  string     `json:"commit_hash,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress is the full contents of progress.json: a snapshot of every
// section's state plus the run currently driving it, letting a restarted
// process resume instead of re-planning from scratch (§4.1 resume path).
type Progress struct {
	ProjectID     string                     `json:"project_id"`
	CurrentRunID  string                     `json:"current_run_id,omitempty"`
	Sections      map[string]SectionProgress `json:"sections"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

func (s *Store) progressFile(projectID string) string {
	return s.projectFile(projectID, "progress.json")
}

// SaveProgress atomically persists a Progress snapshot (saveProgress, §4.1).
func (s *Store) SaveProgress(p *Progress) error {
	if err := s.EnsureProjectDir(p.ProjectID); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return filelock.LockAndWrite(s.progressFile(p.ProjectID), data)
}

// GetProgress reads progress.json, returning an empty Progress (not an
// error) if the project has not yet produced one.
func (s *Store) GetProgress(projectID string) (*Progress, error) {
	data, err := os.ReadFile(s.progressFile(projectID))
	if os.IsNotExist(err) {
		return &Progress{ProjectID: projectID, Sections: map[string]SectionProgress{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse progress.json: %w", err)
	}
	if p.Sections == nil {
		p.Sections = map[string]SectionProgress{}
	}
	return &p, nil
}

// UpdateSectionProgress loads progress.json, applies fn to the named
// section's record (creating it if absent), and saves the result back. This
// is the single entry point callers should use to mutate progress, so every
// write goes through the same load-modify-store-atomically sequence.
func (s *Store) UpdateSectionProgress(projectID, sectionID string, fn func(*SectionProgress)) error {
	progress, err := s.GetProgress(projectID)
	if err != nil {
		return err
	}
	progress.ProjectID = projectID
	sp := progress.Sections[sectionID]
	sp.SectionID = sectionID
	fn(&sp)
	progress.Sections[sectionID] = sp
	return s.SaveProgress(progress)
}

// ApplyProgress overlays a project's persisted progress.json onto an
// already-parsed plan's tasks, the same merge LoadPlan performs internally.
// Callers that re-parse a plan file directly (rather than going through
// LoadPlan) use this to pick up in-flight/completed section state on
// restart (§4.1 resume path, §8 scenario 6).
func (s *Store) ApplyProgress(projectID string, plan *models.Plan) error {
	return s.mergeProgress(projectID, plan)
}

// mergeProgress overlays progress.json's per-section state onto plan.Tasks'
// Status/StartedAt/CompletedAt fields in place, implementing the "progress
// merged onto the loaded plan" half of loadPlan (§4.1).
func (s *Store) mergeProgress(projectID string, plan *models.Plan) error {
	progress, err := s.GetProgress(projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	for i := range plan.Tasks {
		sp, ok := progress.Sections[plan.Tasks[i].Number]
		if !ok {
			continue
		}
		if sp.Status != "" {
			plan.Tasks[i].Status = sp.Status
		}
		plan.Tasks[i].StartedAt = sp.StartedAt
		plan.Tasks[i].CompletedAt = sp.CompletedAt
	}

	return nil
}
