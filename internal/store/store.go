// Package store implements the Persistent State Store (C1): project,
// plan, progress, and execution-run persistence under a repository-rooted
// directory layout, enabling resume after process restart.
//
// Layout (§4.1):
//
//	<bvs-root>/
//	  config.json
//	  conventions.md
//	  learnings.md
//	  learnings.sqlite
//	  projects/<project-id>/
//	    project.json
//	    planning-session.json
//	    plan.json
//	    progress.json
//	    runs/<run-id>.json
//	    logs/
//	    checkpoints/
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bvs-orchestrator/bvs/internal/filelock"
	"github.com/bvs-orchestrator/bvs/internal/models"
)

// ErrNotFound is returned when a project, plan, or run does not exist.
var ErrNotFound = errors.New("store: not found")

// ProjectStatus enumerates the lifecycle states of a Project (§3).
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectReady      ProjectStatus = "ready"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectPaused     ProjectStatus = "paused"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// Project is the persisted container described by project.json.
type Project struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	TotalSections     int `json:"total_sections"`
	CompletedSections int `json:"completed_sections"`
	FailedSections    int `json:"failed_sections"`
}

// Store is the root handle for all state-store operations rooted at bvsRoot
// (an absolute path, conventionally "<repo>/.bvs").
type Store struct {
	Root string
}

// New returns a Store rooted at the given directory. The directory need not
// exist yet; EnsureRoot / EnsureProjectDir create it idempotently.
func New(bvsRoot string) *Store {
	return &Store{Root: bvsRoot}
}

// EnsureRoot creates the bvs-root directory tree if missing.
func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.Root, 0755)
}

// EnsureProjectDir creates a project's directory tree idempotently.
func (s *Store) EnsureProjectDir(projectID string) error {
	dir := s.projectDir(projectID)
	for _, sub := range []string{"", "runs", "logs", "checkpoints"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("ensure project dir %s: %w", sub, err)
		}
	}
	return nil
}

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.Root, "projects", projectID)
}

func (s *Store) projectFile(projectID, name string) string {
	return filepath.Join(s.projectDir(projectID), name)
}

// SaveProject writes project.json atomically.
func (s *Store) SaveProject(p *Project) error {
	if err := s.EnsureProjectDir(p.ID); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	return filelock.LockAndWrite(s.projectFile(p.ID, "project.json"), data)
}

// GetProject reads project.json.
func (s *Store) GetProject(projectID string) (*Project, error) {
	data, err := os.ReadFile(s.projectFile(projectID, "project.json"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project.json: %w", err)
	}
	return &p, nil
}

// ListProjects lists every project directory under projects/.
func (s *Store) ListProjects() ([]*Project, error) {
	entries, err := os.ReadDir(filepath.Join(s.Root, "projects"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var projects []*Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.GetProject(e.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// DeleteProject removes a project's persisted state. physical=false performs
// a logical delete (status=cancelled); physical=true removes the directory.
func (s *Store) DeleteProject(projectID string, physical bool) error {
	if !physical {
		p, err := s.GetProject(projectID)
		if err != nil {
			return err
		}
		p.Status = ProjectCancelled
		return s.SaveProject(p)
	}
	return os.RemoveAll(s.projectDir(projectID))
}

// SavePlan writes plan.json atomically.
func (s *Store) SavePlan(projectID string, plan *models.Plan) error {
	if err := s.EnsureProjectDir(projectID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	return filelock.LockAndWrite(s.projectFile(projectID, "plan.json"), data)
}

// LoadPlan implements loadPlan(repo, projectId?) per §4.1: if projectID is
// given, read that project's plan.json; else scan projects for the first
// with status in {ready, in_progress, paused}; fall back to a single legacy
// plan.json directly under bvs-root. Always merges progress.json onto the
// loaded plan's sections before returning.
func (s *Store) LoadPlan(projectID string) (*models.Plan, error) {
	var path string

	if projectID != "" {
		path = s.projectFile(projectID, "plan.json")
	} else {
		projects, err := s.ListProjects()
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			if p.Status == ProjectReady || p.Status == ProjectInProgress || p.Status == ProjectPaused {
				projectID = p.ID
				path = s.projectFile(p.ID, "plan.json")
				break
			}
		}
		if path == "" {
			path = filepath.Join(s.Root, "plan.json")
		}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan.json: %w", err)
	}

	if projectID != "" {
		if err := s.mergeProgress(projectID, &plan); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return &plan, nil
}
