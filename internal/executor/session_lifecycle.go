package executor

import (
	"context"
	"fmt"
	"sync"
)

// SessionStatus enumerates an orchestrator Session's lifecycle states (§4.8).
type SessionStatus string

const (
	SessionIdle             SessionStatus = "idle"
	SessionRunning          SessionStatus = "running"
	SessionPaused           SessionStatus = "paused"
	SessionCompleted        SessionStatus = "completed"
	SessionFailed           SessionStatus = "failed"
	SessionAwaitingApproval SessionStatus = "awaiting_approval"
)

// ApprovalMode selects how often a Session pauses for operator approval
// between DAG levels (§4.8).
type ApprovalMode string

const (
	// ATTENDEDSingle pauses for approval before every section. WaveExecutor
	// only has level-granularity control (ExecutePlan delegates per-level
	// iteration, not per-task), so this is approximated at the level
	// boundary rather than truly per-section; see DESIGN.md.
	ATTENDEDSingle ApprovalMode = "ATTENDED_SINGLE"
	// ATTENDEDLevel pauses for approval before every level (wave).
	ATTENDEDLevel ApprovalMode = "ATTENDED_LEVEL"
	// SEMIAttended only pauses when the prior level produced a failure.
	SEMIAttended ApprovalMode = "SEMI_ATTENDED"
	// Unattended never pauses for approval.
	Unattended ApprovalMode = "UNATTENDED"
)

// SessionLimits bounds a Session's resource consumption (§4.8).
type SessionLimits struct {
	MaxIterationsPerSubtask int
	MaxCostPerSubtask       float64
	MaxTotalCost            float64
}

// SessionLimitExceededError reports which limit a Session tripped and by
// how much (§4.8, §7).
type SessionLimitExceededError struct {
	LimitKind string // "iterations_per_subtask", "cost_per_subtask", "total_cost"
	Limit     float64
	Actual    float64
}

func (e *SessionLimitExceededError) Error() string {
	return fmt.Sprintf("session limit %s exceeded: actual %.4f > limit %.4f", e.LimitKind, e.Actual, e.Limit)
}

// Session is the C8 orchestrator session described in §4.8: a single pass
// over a plan with an explicit lifecycle, an approval mode gating how often
// it pauses for operator input, and limits that halt execution rather than
// silently overspend.
type Session struct {
	mu sync.Mutex

	ID     string
	Status SessionStatus
	Mode   ApprovalMode
	Limits SessionLimits

	totalCostUSD   float64
	lastLevelFailed bool

	selected map[string]bool // empty: no restriction, run every section
	retry    map[string]bool
	skip     map[string]bool

	resumeCh chan struct{}
}

// NewSession constructs an idle Session under the given approval mode and
// limits (a zero SessionLimits disables all three checks).
func NewSession(id string, mode ApprovalMode, limits SessionLimits) *Session {
	if mode == "" {
		mode = Unattended
	}
	return &Session{
		ID:       id,
		Status:   SessionIdle,
		Mode:     mode,
		Limits:   limits,
		selected: make(map[string]bool),
		retry:    make(map[string]bool),
		skip:     make(map[string]bool),
		resumeCh: make(chan struct{}),
	}
}

// Start transitions an idle/paused Session to running.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SessionRunning
}

// Pause transitions a running Session to paused, so a later Resume can
// continue it from exactly where it left off (§4.8 pause/resume).
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SessionPaused
}

// Resume releases any goroutine blocked in AwaitApproval and returns the
// Session to running.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SessionRunning
	close(s.resumeCh)
	s.resumeCh = make(chan struct{})
}

// GetStatus reports the Session's current lifecycle state.
func (s *Session) GetStatus() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// Finish marks the Session terminal: completed on success, failed otherwise.
func (s *Session) Finish(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.Status = SessionCompleted
	} else {
		s.Status = SessionFailed
	}
}

// RetrySection marks a section for forced re-execution on the next wave
// pass even if progress already recorded it complete (§4.8 retry).
func (s *Session) RetrySection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry[id] = true
	delete(s.skip, id)
}

// SkipSection marks a section to be excluded from execution regardless of
// its dependency-graph placement (§4.8 skip).
func (s *Session) SkipSection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skip[id] = true
	delete(s.retry, id)
}

// SelectSections restricts execution to exactly the given section ids
// (§4.8 selectedSectionIds). An empty slice clears the restriction.
func (s *Session) SelectSections(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.selected[id] = true
	}
}

// ShouldExecute reports whether a section should run this pass, honoring
// SelectSections/SkipSection/RetrySection.
func (s *Session) ShouldExecute(sectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skip[sectionID] {
		return false
	}
	if len(s.selected) > 0 && !s.selected[sectionID] {
		return false
	}
	return true
}

// ForceRetry reports whether sectionID was explicitly marked for retry,
// overriding an otherwise-skippable (already completed) status.
func (s *Session) ForceRetry(sectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry[sectionID]
}

// CheckSubtaskUsage enforces the per-subtask iteration/cost limits (§4.8).
func (s *Session) CheckSubtaskUsage(iterations int, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Limits.MaxIterationsPerSubtask > 0 && iterations > s.Limits.MaxIterationsPerSubtask {
		return &SessionLimitExceededError{
			LimitKind: "iterations_per_subtask",
			Limit:     float64(s.Limits.MaxIterationsPerSubtask),
			Actual:    float64(iterations),
		}
	}
	if s.Limits.MaxCostPerSubtask > 0 && costUSD > s.Limits.MaxCostPerSubtask {
		return &SessionLimitExceededError{
			LimitKind: "cost_per_subtask",
			Limit:     s.Limits.MaxCostPerSubtask,
			Actual:    costUSD,
		}
	}
	return nil
}

// AddCost accumulates a section's cost into the Session's running total and
// enforces MaxTotalCost (§4.8). Cost already spent is kept even when the
// limit trips, so the caller can report exactly how far over budget the run
// went.
func (s *Session) AddCost(costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCostUSD += costUSD
	if s.Limits.MaxTotalCost > 0 && s.totalCostUSD > s.Limits.MaxTotalCost {
		return &SessionLimitExceededError{
			LimitKind: "total_cost",
			Limit:     s.Limits.MaxTotalCost,
			Actual:    s.totalCostUSD,
		}
	}
	return nil
}

// TotalCost reports the Session's running cost total.
func (s *Session) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCostUSD
}

// RecordLevelOutcome tells the Session whether the level (wave) just
// executed contained a failure, informing SEMI_ATTENDED's pause decision.
func (s *Session) RecordLevelOutcome(hadFailure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLevelFailed = hadFailure
}

// AwaitApproval blocks before levelIndex starts if the Session's approval
// mode requires operator sign-off at this boundary, returning only once
// Resume is called or ctx is done (§4.8 approval modes, pause/resume).
// ATTENDED_SINGLE and ATTENDED_LEVEL both pause at every level boundary
// (the WaveExecutor loop's only granularity); SEMI_ATTENDED pauses only
// when the previous level saw a failure; UNATTENDED never pauses.
func (s *Session) AwaitApproval(ctx context.Context, levelIndex int) error {
	s.mu.Lock()
	mode := s.Mode
	needsApproval := false
	switch mode {
	case ATTENDEDSingle, ATTENDEDLevel:
		needsApproval = true
	case SEMIAttended:
		needsApproval = s.lastLevelFailed
	case Unattended:
		needsApproval = false
	}
	if levelIndex == 0 && mode != Unattended {
		// Always gate the very first level so an ATTENDED_* session never
		// starts executing before an operator has had a chance to review
		// the plan.
		needsApproval = true
	}
	if !needsApproval {
		s.mu.Unlock()
		return nil
	}
	s.Status = SessionAwaitingApproval
	waitCh := s.resumeCh
	s.mu.Unlock()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
