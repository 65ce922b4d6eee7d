// Package goalreview implements the Goal Reviewer (C7): an independent
// verdict over whether a completed section actually satisfies its declared
// requirements, separate from any code-quality judgment a reviewing agent
// may have already rendered.
package goalreview

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuin/goldmark"

	"github.com/bvs-orchestrator/bvs/internal/models"
)

// Priority ranks a requirement's importance.
type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityCould  Priority = "could"
)

// Verdict is the reviewer's terminal judgment.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictPartial  Verdict = "PARTIAL"
	VerdictRejected Verdict = "REJECTED"
)

// DefaultShouldThreshold is the minimum fraction of "should" requirements
// that must be implemented to avoid a PARTIAL verdict.
const DefaultShouldThreshold = 0.8

// Requirement is one thing the section promised to deliver.
type Requirement struct {
	Description string
	Priority    Priority
	Location    string // declared file path, for file requirements
	Implemented bool
}

// ScopeIssue records a deviation between planned and actual file changes.
type ScopeIssue struct {
	Kind     string // "creep" or "reduction"
	Path     string
	Priority Priority
	Detail   string
}

// Result is the structured outcome of a review.
type Result struct {
	SectionID     string
	Verdict       Verdict
	Requirements  []Requirement
	ScopeIssues   []ScopeIssue
	ShouldCoverage float64
}

// Input is everything the reviewer needs about one completed section.
type Input struct {
	SectionID       string
	SuccessCriteria []string
	DeclaredFiles   []string // files the plan said this section would touch
	ChangedFiles    []string // files actually changed
	RelatedGlobs    []string // globs (tests, types, ...) excluded from scope-creep detection
	BuildPassed     bool
	TestsPassed     bool
	ShouldThreshold float64 // 0 uses DefaultShouldThreshold
	ProjectRoot     string  // used for file-existence checks; empty skips the check
}

var (
	shouldPhrase = regexp.MustCompile(`(?i)\b(should|recommend)\b`)
	couldPhrase  = regexp.MustCompile(`(?i)\b(could|optional|nice[- ]to[- ]have)\b`)
)

func inferPriority(criterion string) Priority {
	switch {
	case shouldPhrase.MatchString(criterion):
		return PriorityShould
	case couldPhrase.MatchString(criterion):
		return PriorityCould
	default:
		return PriorityMust
	}
}

// Review evaluates a completed section against its declared requirements.
func Review(in Input) Result {
	threshold := in.ShouldThreshold
	if threshold <= 0 {
		threshold = DefaultShouldThreshold
	}

	changed := make(map[string]bool, len(in.ChangedFiles))
	for _, f := range in.ChangedFiles {
		changed[filepath.ToSlash(f)] = true
	}

	var requirements []Requirement
	for _, c := range in.SuccessCriteria {
		req := Requirement{Description: c, Priority: inferPriority(c)}
		req.Implemented = correlatesWithChangedFiles(c, changed)
		requirements = append(requirements, req)
	}

	for _, f := range in.DeclaredFiles {
		req := Requirement{Description: fmt.Sprintf("file %s", f), Priority: PriorityMust, Location: f}
		if in.ProjectRoot != "" {
			_, err := os.Stat(filepath.Join(in.ProjectRoot, f))
			req.Implemented = err == nil
		} else {
			req.Implemented = changed[filepath.ToSlash(f)]
		}
		requirements = append(requirements, req)
	}

	issues := scopeDelta(in, requirements, changed)

	result := Result{
		SectionID:    in.SectionID,
		Requirements: requirements,
		ScopeIssues:  issues,
	}
	result.ShouldCoverage = shouldCoverage(requirements)
	result.Verdict = verdict(requirements, issues, in, result.ShouldCoverage, threshold)

	return result
}

// correlatesWithChangedFiles is the "related files changed" heuristic named
// in §4.7: weak by design (word-stem match against changed file basenames),
// not a substitute for semantic analysis, which is out of scope.
func correlatesWithChangedFiles(criterion string, changed map[string]bool) bool {
	if len(changed) == 0 {
		return false
	}
	lower := strings.ToLower(criterion)
	for path := range changed {
		base := strings.ToLower(filepath.Base(path))
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem != "" && strings.Contains(lower, stem) {
			return true
		}
	}
	return false
}

func isRelated(path string, globs []string) bool {
	clean := filepath.ToSlash(path)
	for _, g := range globs {
		if ok, err := doublestar.Match(g, clean); err == nil && ok {
			return true
		}
	}
	return false
}

func scopeDelta(in Input, requirements []Requirement, changed map[string]bool) []ScopeIssue {
	var issues []ScopeIssue

	declared := make(map[string]bool, len(in.DeclaredFiles))
	for _, f := range in.DeclaredFiles {
		declared[filepath.ToSlash(f)] = true
	}

	var creepPaths []string
	for path := range changed {
		if declared[path] {
			continue
		}
		if isRelated(path, in.RelatedGlobs) {
			continue
		}
		creepPaths = append(creepPaths, path)
	}
	sort.Strings(creepPaths)
	for _, p := range creepPaths {
		issues = append(issues, ScopeIssue{Kind: "creep", Path: p, Priority: PriorityMust, Detail: "file changed but not planned"})
	}

	for _, r := range requirements {
		if r.Implemented {
			continue
		}
		issues = append(issues, ScopeIssue{Kind: "reduction", Path: r.Location, Priority: r.Priority, Detail: r.Description})
	}

	return issues
}

func shouldCoverage(requirements []Requirement) float64 {
	total, implemented := 0, 0
	for _, r := range requirements {
		if r.Priority != PriorityShould {
			continue
		}
		total++
		if r.Implemented {
			implemented++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(implemented) / float64(total)
}

func hasCriticalScopeIssue(issues []ScopeIssue) bool {
	for _, i := range issues {
		if i.Kind == "reduction" && i.Priority == PriorityMust {
			return true
		}
	}
	return false
}

func hasUnmetMust(requirements []Requirement) bool {
	for _, r := range requirements {
		if r.Priority == PriorityMust && !r.Implemented {
			return true
		}
	}
	return false
}

func verdict(requirements []Requirement, issues []ScopeIssue, in Input, shouldCoverage, threshold float64) Verdict {
	if hasUnmetMust(requirements) || hasCriticalScopeIssue(issues) || !in.BuildPassed || !in.TestsPassed {
		return VerdictRejected
	}
	if shouldCoverage < threshold {
		return VerdictPartial
	}
	return VerdictApproved
}

// RenderReport renders a Result as a Markdown review report.
func RenderReport(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Goal Review: %s\n\n", r.SectionID)
	fmt.Fprintf(&b, "**Verdict:** %s\n\n", r.Verdict)
	fmt.Fprintf(&b, "**Should-coverage:** %.0f%%\n\n", r.ShouldCoverage*100)

	b.WriteString("## Requirements\n\n")
	for _, req := range r.Requirements {
		mark := "[ ]"
		if req.Implemented {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "- %s (%s) %s\n", mark, req.Priority, req.Description)
	}

	if len(r.ScopeIssues) > 0 {
		b.WriteString("\n## Scope Delta\n\n")
		for _, issue := range r.ScopeIssues {
			fmt.Fprintf(&b, "- **%s** `%s` (%s): %s\n", issue.Kind, issue.Path, issue.Priority, issue.Detail)
		}
	}

	return b.String()
}

// RenderReportHTML parses a rendered Markdown report back through goldmark,
// producing the HTML projection the host CLI's `run get`/`learning load`
// commands print when invoked with --format html.
func RenderReportHTML(r Result) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(RenderReport(r)), &buf); err != nil {
		return "", fmt.Errorf("render goal review report: %w", err)
	}
	return buf.String(), nil
}

// RequirementsFromTask builds the requirement inputs directly from a
// models.Task, the convenience constructor most callers use.
func RequirementsFromTask(task models.Task) (criteria []string, declaredFiles []string) {
	return task.SuccessCriteria, task.Files
}
