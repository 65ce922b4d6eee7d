// Package complexity scores a task's expected difficulty and turns that
// score into a model tier and turn budget for the worker executor.
//
// Analyze is a pure function of models.Task: same input, same output, no
// I/O, no clock, no randomness. The coefficients below are tuned defaults,
// not invariants — callers that need different thresholds should construct
// their own Config rather than patch constants here.
package complexity

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bvs-orchestrator/bvs/internal/models"
)

// Model tiers a task can be routed to.
const (
	ModelFast = "FAST"
	ModelSlow = "SLOW"
)

// Default scoring knobs. Exported so callers can report them alongside a
// Result without reaching into package internals.
const (
	DefaultSlowThreshold    = 4
	DefaultSectionMaxTurns  = 20
	DefaultSubtaskMaxTurns  = 5
	schemaGlob              = "**/{migrations,migration,schema}/**"
	apiGlob                 = "**/api/**"
)

var testGlobs = []string{"**/*.test.*", "**/*.spec.*", "**/__tests__/**"}

// Config carries the historical-risk lookup used to weight factors beyond
// what is derivable from the task alone (§2b of the expanded specification).
// RiskLookup is optional; a nil value disables the historical-risk factor.
type Config struct {
	RiskLookup func(files []string) int
}

// Result is the verdict of the analyzer for one task.
type Result struct {
	Score     int
	Model     string
	MaxTurns  int
	Factors   map[string]int
	RiskFlags []string
}

// Analyze scores a task and selects a model tier and turn budget.
func Analyze(task models.Task, cfg Config) Result {
	factors := map[string]int{}
	var riskFlags []string

	hasSchema, hasAPI, hasTest := false, false, false
	for _, f := range task.Files {
		switch {
		case matchesAny(f, []string{schemaGlob}):
			hasSchema = true
		case matchesAny(f, []string{apiGlob}):
			hasAPI = true
		case matchesAny(f, testGlobs):
			hasTest = true
		}
	}

	factors["file_count"] = len(task.Files)
	factors["dependency_fan_in"] = len(task.DependsOn)
	factors["success_criteria"] = len(task.SuccessCriteria)

	score := 0
	score += scoreBand(len(task.Files), 3, 6, 10)
	score += scoreBand(len(task.DependsOn), 1, 3, 5)
	score += scoreBand(len(task.SuccessCriteria), 2, 4, 6)

	if hasSchema {
		score += 2
		factors["schema_changes"] = 1
		riskFlags = append(riskFlags, "schema-change")
	}
	if hasAPI {
		score += 1
		factors["api_changes"] = 1
	}
	if hasTest {
		factors["has_tests"] = 1
	}
	if task.Type == "integration" {
		score += 2
		factors["integration_task"] = 1
		riskFlags = append(riskFlags, "integration")
	}

	if cfg.RiskLookup != nil {
		if risk := cfg.RiskLookup(task.Files); risk > 0 {
			factors["historical_failures"] = risk
			score += scoreBand(risk, 1, 3, 4)
			riskFlags = append(riskFlags, "recurring-failure-signature")
		}
	}

	model := ModelFast
	if score > DefaultSlowThreshold {
		model = ModelSlow
	}

	maxTurns := DefaultSectionMaxTurns
	if model == ModelFast {
		maxTurns = DefaultSectionMaxTurns / 2
		if maxTurns < DefaultSubtaskMaxTurns {
			maxTurns = DefaultSubtaskMaxTurns
		}
	}

	return Result{
		Score:     score,
		Model:     model,
		MaxTurns:  maxTurns,
		Factors:   factors,
		RiskFlags: riskFlags,
	}
}

// SubtaskModel selects the model tier for one subtask, combining the
// section-level complexity with the subtask's own file count per §4.4.
func SubtaskModel(sectionScore int, subtaskFileCount int) string {
	if sectionScore+subtaskFileCount <= DefaultSlowThreshold {
		return ModelFast
	}
	return ModelSlow
}

func scoreBand(n, lo, mid, hi int) int {
	switch {
	case n <= 0:
		return 0
	case n <= lo:
		return 1
	case n <= mid:
		return 2
	default:
		_ = hi
		return 3
	}
}

func matchesAny(path string, globs []string) bool {
	clean := filepath.ToSlash(path)
	for _, g := range globs {
		if ok, err := doublestar.Match(g, clean); err == nil && ok {
			return true
		}
	}
	return false
}
