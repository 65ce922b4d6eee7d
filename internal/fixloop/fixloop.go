// Package fixloop runs a bounded test→diagnose→fix cycle against a
// verification command, stopping early when the same failure recurs or
// when a configured cycle limit is reached.
//
// Only verification failures that look build/typecheck-related are
// eligible; other failures are left to the caller's own handling.
package fixloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/bvs-orchestrator/bvs/internal/filelock"
)

// Outcome is the terminal state of a Run.
type Outcome string

const (
	OutcomeGoalMet      Outcome = "goal_met"
	OutcomeSameFailure  Outcome = "same_failure"
	OutcomeMaxCycles    Outcome = "max_cycles"
	OutcomeCancelled    Outcome = "cancelled"
)

// Goal names the kind of verification the loop is chasing.
type Goal string

const (
	GoalBuild     Goal = "build"
	GoalTypecheck Goal = "typecheck"
	GoalLint      Goal = "lint"
	GoalTests     Goal = "tests"
	GoalCustom    Goal = "custom"
)

// buildFailureMarkers are substrings (case-insensitive) that qualify a
// verification failure as eligible for the fix loop, per §4.6.
var buildFailureMarkers = []string{"build", "typescript", "type error"}
var tsErrorCode = regexp.MustCompile(`(?i)TS\d+`)

// IsEligible reports whether a verification failure's text qualifies for
// the fix loop (build/typecheck-related failures only).
func IsEligible(verificationOutput string) bool {
	lower := strings.ToLower(verificationOutput)
	for _, m := range buildFailureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return tsErrorCode.MatchString(verificationOutput)
}

// Config controls loop bounds. Zero values fall back to spec defaults.
type Config struct {
	MaxCycles            int
	SameFailureThreshold int
	CycleTimeout         time.Duration
	Goal                 Goal
	CustomCommand        string
	StatePath            string // fix-loop-state.json location; empty disables persistence
}

func (c Config) withDefaults() Config {
	if c.MaxCycles <= 0 {
		c.MaxCycles = 3
	}
	if c.SameFailureThreshold <= 0 {
		c.SameFailureThreshold = 2
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 120 * time.Second
	}
	if c.Goal == "" {
		c.Goal = GoalTypecheck
	}
	return c
}

// Verifier runs the verification command for a goal and returns its raw
// combined output and whether it passed.
type Verifier interface {
	Verify(ctx context.Context, goal Goal, customCommand string) (output string, passed bool, err error)
}

// Diagnoser extracts a structured diagnosis (file/line/code/message) from
// failing verification output.
type Diagnoser interface {
	Diagnose(ctx context.Context, failureOutput string) (Diagnosis, error)
}

// Fixer asks the external agent to apply a fix given a diagnosis.
type Fixer interface {
	Fix(ctx context.Context, diagnosis Diagnosis) error
}

// Diagnosis is the structured extraction from one failing cycle.
type Diagnosis struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CycleRecord is one completed cycle's outcome, persisted across a run.
type CycleRecord struct {
	Cycle     int       `json:"cycle"`
	Signature string    `json:"signature"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the on-disk shape of fix-loop-state.json.
type State struct {
	Cycles []CycleRecord `json:"cycles"`
}

// Result is the final report of a Run.
type Result struct {
	Outcome    Outcome
	Cycles     int
	LastOutput string
	History    []CycleRecord
}

// Loop runs the bounded cycle.
type Loop struct {
	Verifier  Verifier
	Diagnoser Diagnoser
	Fixer     Fixer
	Config    Config
}

// NewLoop constructs a Loop with defaulted config.
func NewLoop(v Verifier, d Diagnoser, f Fixer, cfg Config) *Loop {
	return &Loop{Verifier: v, Diagnoser: d, Fixer: f, Config: cfg.withDefaults()}
}

// Run drives the cycle to a terminal Outcome. cancel is polled between
// cycles (not within a cycle's own verification/fix subprocess calls).
func (l *Loop) Run(ctx context.Context, cancel <-chan struct{}) (Result, error) {
	cfg := l.Config.withDefaults()

	state, err := l.loadState()
	if err != nil {
		return Result{}, fmt.Errorf("load fix-loop state: %w", err)
	}

	signatureCounts := map[string]int{}
	for _, rec := range state.Cycles {
		if !rec.Passed {
			signatureCounts[rec.Signature]++
		}
	}

	var lastOutput string
	for cycle := len(state.Cycles) + 1; cycle <= cfg.MaxCycles; cycle++ {
		select {
		case <-cancel:
			return Result{Outcome: OutcomeCancelled, Cycles: cycle - 1, LastOutput: lastOutput, History: state.Cycles}, nil
		default:
		}

		cycleCtx, stop := context.WithTimeout(ctx, cfg.CycleTimeout)
		output, passed, verr := l.Verifier.Verify(cycleCtx, cfg.Goal, cfg.CustomCommand)
		stop()
		lastOutput = output
		if verr != nil {
			return Result{}, fmt.Errorf("run verification: %w", verr)
		}

		if passed {
			state.Cycles = append(state.Cycles, CycleRecord{Cycle: cycle, Signature: "", Passed: true, Timestamp: time.Now()})
			l.clearState()
			return Result{Outcome: OutcomeGoalMet, Cycles: cycle, LastOutput: output, History: state.Cycles}, nil
		}

		signature := ErrorSignature(output)
		signatureCounts[signature]++
		state.Cycles = append(state.Cycles, CycleRecord{Cycle: cycle, Signature: signature, Passed: false, Timestamp: time.Now()})
		if err := l.saveState(state); err != nil {
			return Result{}, fmt.Errorf("persist fix-loop state: %w", err)
		}

		if signatureCounts[signature] >= cfg.SameFailureThreshold {
			return Result{Outcome: OutcomeSameFailure, Cycles: cycle, LastOutput: output, History: state.Cycles}, nil
		}

		if l.Diagnoser == nil || l.Fixer == nil {
			continue
		}
		diagnosis, derr := l.Diagnoser.Diagnose(ctx, output)
		if derr != nil {
			continue
		}
		if err := l.Fixer.Fix(ctx, diagnosis); err != nil {
			continue
		}
	}

	return Result{Outcome: OutcomeMaxCycles, Cycles: cfg.MaxCycles, LastOutput: lastOutput, History: state.Cycles}, nil
}

var (
	lineColRe  = regexp.MustCompile(`:\d+:\d+`)
	errorLines = regexp.MustCompile(`(?i)error|fail|exception`)
)

// ErrorSignature reduces failing verification output to a stable, comparable
// signature per §4.6: keep lines mentioning an error marker, normalize
// directory segments and line:col tuples, tokenize on word boundaries
// (via uax29, so multi-byte identifiers normalize consistently), keep the
// first five lines, join with "|".
func ErrorSignature(output string) string {
	var kept []string
	for _, line := range strings.Split(output, "\n") {
		if !errorLines.MatchString(line) {
			continue
		}
		kept = append(kept, normalizeLine(line))
		if len(kept) == 5 {
			break
		}
	}
	return strings.Join(kept, "|")
}

func normalizeLine(line string) string {
	line = lineColRe.ReplaceAllString(line, ":X:X")
	line = normalizePathSegments(line)

	seg := words.NewSegmenter([]byte(line))
	var b strings.Builder
	for seg.Next() {
		tok := string(seg.Value())
		if strings.TrimSpace(tok) == "" {
			continue
		}
		b.WriteString(tok)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

func normalizePathSegments(line string) string {
	return regexp.MustCompile(`(?:/[\w.\-]+){2,}`).ReplaceAllStringFunc(line, func(p string) string {
		ext := filepath.Ext(p)
		return "/X" + ext
	})
}

func (l *Loop) loadState() (State, error) {
	if l.Config.StatePath == "" {
		return State{}, nil
	}
	data, err := os.ReadFile(l.Config.StatePath)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	return s, nil
}

func (l *Loop) saveState(s State) error {
	if l.Config.StatePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return filelock.LockAndWrite(l.Config.StatePath, data)
}

func (l *Loop) clearState() {
	if l.Config.StatePath == "" {
		return
	}
	_ = os.Remove(l.Config.StatePath)
}
