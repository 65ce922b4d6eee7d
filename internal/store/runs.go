package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bvs-orchestrator/bvs/internal/filelock"
)

// RunStatus enumerates the lifecycle of one execution run (§3 "Run").
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// Run is one pass of the orchestrator driving a plan's sections to
// completion, persisted at runs/<run-id>.json.
type Run struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Status          RunStatus `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	WorkerCount     int       `json:"worker_count"`
	SectionsTotal   int       `json:"sections_total"`
	SectionsDone    int       `json:"sections_done"`
	SectionsFailed  int       `json:"sections_failed"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	TotalInputTok   int       `json:"total_input_tokens"`
	TotalOutputTok  int       `json:"total_output_tokens"`
	FailureSummary  string    `json:"failure_summary,omitempty"`
}

func (s *Store) runFile(projectID, runID string) string {
	return filepath.Join(s.projectDir(projectID), "runs", runID+".json")
}

// CreateRun initializes and persists a new Run record.
func (s *Store) CreateRun(run *Run) error {
	if err := s.EnsureProjectDir(run.ProjectID); err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	return s.writeRun(run)
}

// UpdateRun loads a run, applies fn, and persists it back.
func (s *Store) UpdateRun(projectID, runID string, fn func(*Run)) error {
	run, err := s.GetRun(projectID, runID)
	if err != nil {
		return err
	}
	fn(run)
	return s.writeRun(run)
}

func (s *Store) writeRun(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return filelock.LockAndWrite(s.runFile(run.ProjectID, run.ID), data)
}

// GetRun reads a single run record.
func (s *Store) GetRun(projectID, runID string) (*Run, error) {
	data, err := os.ReadFile(s.runFile(projectID, runID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	return &run, nil
}

// ListRuns returns every run for a project, newest first.
func (s *Store) ListRuns(projectID string) ([]*Run, error) {
	dir := filepath.Join(s.projectDir(projectID), "runs")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var runs []*Run
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		runID := e.Name()[:len(e.Name())-len(".json")]
		run, err := s.GetRun(projectID, runID)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// DeleteRun removes a single run record.
func (s *Store) DeleteRun(projectID, runID string) error {
	err := os.Remove(s.runFile(projectID, runID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// FinishRun marks a run terminal and stamps EndedAt.
func (s *Store) FinishRun(projectID, runID string, status RunStatus, failureSummary string) error {
	return s.UpdateRun(projectID, runID, func(r *Run) {
		now := time.Now()
		r.Status = status
		r.EndedAt = &now
		r.FailureSummary = failureSummary
	})
}
