package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bvs-orchestrator/bvs/internal/learning"
)

// LearningEntry is one captured lesson from a completed or failed section,
// written to both the authoritative Markdown log and the derived SQLite
// index (§9 "Learning store duality").
type LearningEntry struct {
	SectionID    string
	TaskName     string
	Agent        string
	Success      bool
	Summary      string
	FailurePatterns []string
	QCVerdict    string
	QCFeedback   string
	DurationSecs int64
	Timestamp    time.Time
}

func (s *Store) learningsMarkdownPath() string {
	return filepath.Join(s.Root, "learnings.md")
}

func (s *Store) learningsDBPath() string {
	return filepath.Join(s.Root, "learnings.sqlite")
}

// CaptureLearning appends a human-readable entry to learnings.md (the
// spec-mandated, git-diffable source of truth) and records the same
// execution in the SQLite-backed pattern store (a derived, rebuildable
// acceleration index used for historical-risk lookups, §2b).
func (s *Store) CaptureLearning(ctx context.Context, planFile string, runNumber int, entry LearningEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := s.appendLearningMarkdown(entry); err != nil {
		return fmt.Errorf("append learnings.md: %w", err)
	}

	if err := s.EnsureRoot(); err != nil {
		return err
	}
	db, err := learning.NewStore(s.learningsDBPath())
	if err != nil {
		return fmt.Errorf("open learnings.sqlite: %w", err)
	}
	defer db.Close()

	return db.RecordExecution(ctx, &learning.TaskExecution{
		PlanFile:        planFile,
		RunNumber:       runNumber,
		TaskNumber:      entry.SectionID,
		TaskName:        entry.TaskName,
		Agent:           entry.Agent,
		Success:         entry.Success,
		Output:          entry.Summary,
		QCVerdict:       entry.QCVerdict,
		QCFeedback:      entry.QCFeedback,
		FailurePatterns: entry.FailurePatterns,
		DurationSecs:    entry.DurationSecs,
		Timestamp:       entry.Timestamp,
	})
}

func (s *Store) appendLearningMarkdown(entry LearningEntry) error {
	f, err := os.OpenFile(s.learningsMarkdownPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	status := "passed"
	if !entry.Success {
		status = "failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## Section %s — %s (%s)\n\n", entry.SectionID, entry.TaskName, entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- status: %s\n", status)
	if entry.Agent != "" {
		fmt.Fprintf(&b, "- agent: %s\n", entry.Agent)
	}
	if entry.QCVerdict != "" {
		fmt.Fprintf(&b, "- qc verdict: %s\n", entry.QCVerdict)
	}
	if entry.Summary != "" {
		fmt.Fprintf(&b, "- summary: %s\n", entry.Summary)
	}
	if len(entry.FailurePatterns) > 0 {
		fmt.Fprintf(&b, "- failure patterns: %s\n", strings.Join(entry.FailurePatterns, ", "))
	}

	_, err = f.WriteString(b.String())
	return err
}

// RiskLookup implements the complexity.Config.RiskLookup seam (§2b): it
// scores a file set's historical risk from prior recorded failures touching
// the same plan file, letting the complexity analyzer factor in past pain
// without coupling the two packages directly.
func (s *Store) RiskLookup(planFile string) func(files []string) int {
	return func(files []string) int {
		db, err := learning.NewStore(s.learningsDBPath())
		if err != nil {
			return 0
		}
		defer db.Close()

		executions, err := db.GetExecutions(planFile)
		if err != nil {
			return 0
		}

		failures := 0
		for _, exec := range executions {
			if !exec.Success {
				failures++
			}
		}
		if failures == 0 {
			return 0
		}
		if failures >= len(files) {
			return 2
		}
		return 1
	}
}
