package store

import (
	"context"

	"github.com/bvs-orchestrator/bvs/internal/models"
)

// ProgressRecorder adapts a Store to the executor package's
// executor.ProgressRecorder interface without internal/store importing
// internal/executor (which would invert the module's dependency direction).
// Construct with NewProgressRecorder and pass the result where an
// executor.ProgressRecorder is expected.
type ProgressRecorder struct {
	store     *Store
	projectID string
	planFile  string
	runNumber int
}

// NewProgressRecorder returns a recorder that persists every task result it
// receives into progress.json (status/commit/timestamps) and, for terminal
// results, captures a learning entry (§4.1, §9).
func NewProgressRecorder(s *Store, projectID, planFile string, runNumber int) *ProgressRecorder {
	return &ProgressRecorder{store: s, projectID: projectID, planFile: planFile, runNumber: runNumber}
}

// RecordTaskResult implements executor.ProgressRecorder.
func (r *ProgressRecorder) RecordTaskResult(sectionID string, result models.TaskResult) {
	_ = r.store.UpdateSectionProgress(r.projectID, sectionID, func(sp *SectionProgress) {
		sp.Attempts++
		sp.Status = progressStatus(result.Status)
		if result.Error != nil {
			sp.LastError = result.Error.Error()
		}
		if result.Task.CompletedAt != nil {
			sp.CompletedAt = result.Task.CompletedAt
		}
		if result.Task.StartedAt != nil {
			sp.StartedAt = result.Task.StartedAt
		}
	})

	success := result.Status == "GREEN" || result.Status == "YELLOW"
	_ = r.store.CaptureLearning(context.Background(), r.planFile, r.runNumber, LearningEntry{
		SectionID:    sectionID,
		TaskName:     result.Task.Name,
		Agent:        result.Task.ExecutedBy,
		Success:      success,
		Summary:      result.ReviewFeedback,
		QCVerdict:    result.Status,
		DurationSecs: int64(result.Duration.Seconds()),
	})
}

func progressStatus(qcStatus string) string {
	switch qcStatus {
	case "GREEN", "YELLOW":
		return "completed"
	case "RED", "FAILED", "TIMEOUT":
		return "failed"
	default:
		return qcStatus
	}
}
