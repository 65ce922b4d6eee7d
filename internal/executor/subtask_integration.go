package executor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bvs-orchestrator/bvs/internal/fixloop"
	"github.com/bvs-orchestrator/bvs/internal/goalreview"
	"github.com/bvs-orchestrator/bvs/internal/models"
)

// ExecuteViaSubtasks runs task through the subtask-decomposition path
// (§4.4), then layers the goal review (§4.7) and, for eligible test-command
// failures, the bounded fix loop (§4.6) on top of the aggregated result. It
// is the entry point Execute dispatches to when task.ShouldUseSubtasks()
// is true.
func (te *DefaultTaskExecutor) ExecuteViaSubtasks(ctx context.Context, task models.Task) (models.TaskResult, error) {
	start := te.now()
	result := models.TaskResult{Task: task}

	runner := &DefaultSubtaskRunner{
		Invoker:       te.invoker,
		CommandRunner: te.CommandRunner,
		WorktreePath:  te.WorkDir,
	}
	if te.CommandRunner != nil && task.TypecheckCommand != "" {
		runner.Typecheck = func(ctx context.Context) (string, bool, error) {
			out, err := te.CommandRunner.Run(ctx, task.TypecheckCommand)
			return out, err == nil, nil
		}
	}

	score := te.subtaskSectionScore(task)
	workerResult := ExecuteSectionWithSubtasks(ctx, runner, te.SessionID, task, score)

	result.Duration = te.now().Sub(start)
	result.Output = summarizeWorkerResult(workerResult)

	var sessionCost float64
	for _, st := range workerResult.Subtasks {
		sessionCost += st.Metrics.CostUSD
	}
	if te.Session != nil {
		if err := te.Session.AddCost(sessionCost); err != nil {
			workerResult.Success = false
			workerResult.Errors = append(workerResult.Errors, err)
		}
	}

	if !workerResult.Success && te.CommandRunner != nil && len(task.TestCommands) > 0 {
		workerResult, result = te.tryFixLoop(ctx, task, runner, score, workerResult, result)
	}

	if workerResult.Success {
		result.Status = "GREEN"
	} else {
		result.Status = "RED"
		if len(workerResult.Errors) > 0 {
			result.Error = workerResult.Errors[len(workerResult.Errors)-1]
		}
	}

	changedFiles := make([]string, 0, len(workerResult.Subtasks))
	for _, st := range workerResult.Subtasks {
		if st.CommitHash != "" {
			changedFiles = append(changedFiles, st.Files...)
		}
	}

	review := goalreview.Review(goalreview.Input{
		SectionID:       task.Number,
		SuccessCriteria: task.SuccessCriteria,
		DeclaredFiles:   task.Files,
		ChangedFiles:    changedFiles,
		BuildPassed:     workerResult.Success,
		TestsPassed:     workerResult.Success,
		ProjectRoot:     te.WorkDir,
	})
	result.ReviewFeedback = goalreview.RenderReport(review)

	if review.Verdict == goalreview.VerdictRejected && result.Status == "GREEN" {
		// The goal reviewer caught something code-quality checks missed
		// (e.g. an unmet must-have with no build/test signal attached).
		result.Status = "RED"
	}

	return result, nil
}

func (te *DefaultTaskExecutor) now() time.Time {
	if te.clock != nil {
		return te.clock()
	}
	return time.Now()
}

// subtaskSectionScore derives a rough complexity score from the task shape
// without importing the full analyzer config (the orchestrator wires the
// richer complexity.Analyze path before execution; this is a fallback for
// callers that invoke ExecuteViaSubtasks directly, e.g. tests).
func (te *DefaultTaskExecutor) subtaskSectionScore(task models.Task) int {
	score := len(task.Files)
	if task.Type == "integration" {
		score += 3
	}
	return score
}

func summarizeWorkerResult(r WorkerResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "executed %d subtask(s) for section %s, success=%v\n", len(r.Subtasks), r.SectionID, r.Success)
	for _, st := range r.Subtasks {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", st.Kind, st.Name, st.Status)
	}
	return b.String()
}

// commandVerifier adapts CommandRunner-driven test commands to the
// fixloop.Verifier interface.
type commandVerifier struct {
	runner CommandRunner
	task   models.Task
}

func (v *commandVerifier) Verify(ctx context.Context, goal fixloop.Goal, customCommand string) (string, bool, error) {
	results, err := RunTestCommands(ctx, v.runner, v.task)
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "$ %s\n%s\n", r.Command, r.Output)
	}
	if err != nil {
		return b.String(), false, nil // a failing command is a failed verification, not a Verify error
	}
	return b.String(), true, nil
}

// subtaskFixer re-invokes the originating subtask's runner with the
// diagnosis appended to its prompt, asking the agent to address exactly
// that failure.
type subtaskFixer struct {
	runner  SubtaskRunner
	workerID string
	task    models.Task
	subtask Subtask
}

func (f *subtaskFixer) Fix(ctx context.Context, diagnosis fixloop.Diagnosis) error {
	fixSubtask := f.subtask
	fixSubtask.Name = fmt.Sprintf("fix: %s", diagnosis.Message)
	_, err := f.runner.RunSubtask(ctx, f.workerID, f.task, fixSubtask, f.subtask.Metrics.Model)
	return err
}

var diagLineRe = regexp.MustCompile(`([^\s:]+):(\d+):\d+`)

// regexDiagnoser extracts a file/line/message triple from the first
// "path:line:col" match in failing verification output, the same shape
// fixloop.ErrorSignature already normalizes.
type regexDiagnoser struct{}

func (regexDiagnoser) Diagnose(ctx context.Context, output string) (fixloop.Diagnosis, error) {
	d := fixloop.Diagnosis{Message: firstLine(output)}
	if m := diagLineRe.FindStringSubmatch(output); m != nil {
		d.File = m[1]
		if n, err := strconv.Atoi(m[2]); err == nil {
			d.Line = n
		}
	}
	return d, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// tryFixLoop runs a bounded fix-diagnose-reverify cycle over the last
// failed subtask's test commands when the failure looks build/test
// eligible (§4.6). On success it re-marks the worker result successful.
func (te *DefaultTaskExecutor) tryFixLoop(ctx context.Context, task models.Task, runner SubtaskRunner, score int, workerResult WorkerResult, result models.TaskResult) (WorkerResult, models.TaskResult) {
	if !fixloop.IsEligible(result.Output) {
		return workerResult, result
	}

	var failed *Subtask
	for i := range workerResult.Subtasks {
		if workerResult.Subtasks[i].Status == "failed" {
			failed = &workerResult.Subtasks[i]
		}
	}
	if failed == nil {
		return workerResult, result
	}

	loop := fixloop.NewLoop(
		&commandVerifier{runner: te.CommandRunner, task: task},
		regexDiagnoser{},
		&subtaskFixer{runner: runner, workerID: te.SessionID, task: task, subtask: *failed},
		fixloop.Config{Goal: fixloop.GoalTests},
	)

	loopResult, err := loop.Run(ctx, nil)
	if err != nil || loopResult.Outcome != fixloop.OutcomeGoalMet {
		return workerResult, result
	}

	failed.Status = "done"
	workerResult.Success = true
	for _, st := range workerResult.Subtasks {
		if st.Status != "done" {
			workerResult.Success = false
		}
	}
	result.RetryCount += loopResult.Cycles
	return workerResult, result
}
