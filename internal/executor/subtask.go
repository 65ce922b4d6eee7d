package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bvs-orchestrator/bvs/internal/agent"
	"github.com/bvs-orchestrator/bvs/internal/complexity"
	"github.com/bvs-orchestrator/bvs/internal/models"
)

// SubtaskKind classifies a subtask by the kind of file it touches, per the
// fixed ordering schema -> types -> implementation -> tests (§4.4).
type SubtaskKind string

const (
	SubtaskSchema         SubtaskKind = "schema"
	SubtaskTypes          SubtaskKind = "types"
	SubtaskImplementation SubtaskKind = "implementation"
	SubtaskTests          SubtaskKind = "tests"
)

// implementationChunkSize bounds how many implementation files share one subtask.
const implementationChunkSize = 5

var (
	schemaGlobs = []string{"**/migrations/**", "**/migration/**", "**/schema/**", "**/*schema*"}
	typesGlobs  = []string{"**/*.types.*", "**/types/**"}
	testGlobsForSplit = []string{"**/*.test.*", "**/*.spec.*", "**/__tests__/**"}
)

// Subtask is the atomic unit of work inside a section (§3 "Subtask").
type Subtask struct {
	ID         string
	SectionID  string
	Name       string
	Kind       SubtaskKind
	Files      []string
	Status     string
	TurnsUsed  int
	MaxTurns   int
	CommitHash string
	Error      error
	Metrics    SubtaskMetrics
}

// SubtaskMetrics tracks per-subtask cost accounting.
type SubtaskMetrics struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Model        string
	FilesChanged int
	LinesAdded   int
	LinesDeleted int
}

// ClassifySubtasks splits a section's file list into an ordered sequence of
// subtasks per §4.4 step 1. It is a pure function: the same file list always
// yields the same subtask sequence (Worker property, §8).
func ClassifySubtasks(sectionID string, files []string) []Subtask {
	var schema, types, tests, impl []string

	for _, f := range files {
		clean := filepath.ToSlash(f)
		switch {
		case matchesGlobs(clean, schemaGlobs):
			schema = append(schema, f)
		case matchesGlobs(clean, typesGlobs):
			types = append(types, f)
		case matchesGlobs(clean, testGlobsForSplit):
			tests = append(tests, f)
		default:
			impl = append(impl, f)
		}
	}

	var subtasks []Subtask
	n := 0
	add := func(kind SubtaskKind, groupFiles []string, name string) {
		if len(groupFiles) == 0 {
			return
		}
		n++
		subtasks = append(subtasks, Subtask{
			ID:        fmt.Sprintf("%s.%d", sectionID, n),
			SectionID: sectionID,
			Name:      name,
			Kind:      kind,
			Files:     groupFiles,
			Status:    "pending",
			MaxTurns:  complexity.DefaultSubtaskMaxTurns,
		})
	}

	add(SubtaskSchema, schema, "schema changes")
	add(SubtaskTypes, types, "type definitions")

	for i := 0; i < len(impl); i += implementationChunkSize {
		end := i + implementationChunkSize
		if end > len(impl) {
			end = len(impl)
		}
		chunkName := "implementation"
		if len(impl) > implementationChunkSize {
			chunkName = fmt.Sprintf("implementation (part %d)", i/implementationChunkSize+1)
		}
		add(SubtaskImplementation, impl[i:end], chunkName)
	}

	add(SubtaskTests, tests, "tests")

	if len(subtasks) == 0 && len(files) > 0 {
		add(SubtaskImplementation, files, "catch-all")
	}

	return subtasks
}

func matchesGlobs(path string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}

// WorkerResult is the aggregated outcome of executing a section through its
// subtask sequence (§4.4 step 3).
type WorkerResult struct {
	SectionID    string
	WorkerID     string
	Subtasks     []Subtask
	Success      bool
	TotalTurns   int
	FilesChanged int
	Commits      []string
	Errors       []error
}

// SubtaskRunner executes one subtask's agent turn loop and commit. It is the
// seam that lets ExecuteSectionWithSubtasks stay independent of the
// concrete invoker/committer wiring, mirroring the package's existing
// InvokerInterface/CommandRunner seams.
type SubtaskRunner interface {
	RunSubtask(ctx context.Context, workerID string, section models.Task, subtask Subtask, model string) (Subtask, error)
}

// DefaultSubtaskRunner invokes the external agent once per subtask (fresh
// context, §4.4 step 2) via an InvokerInterface, then stages and commits any
// changed files via a CommandRunner running real git subprocess commands.
type DefaultSubtaskRunner struct {
	Invoker       InvokerInterface
	CommandRunner CommandRunner
	WorktreePath  string

	// Typecheck runs the incremental typecheck the tool surface fires every
	// 3 observed edits (§4.4 step 2). Optional; when nil the cadence is a
	// no-op (still tracked, never invoked).
	Typecheck func(ctx context.Context) (output string, passed bool, err error)
}

// RunSubtask builds a synthetic per-subtask task (so the existing invoker
// contract can be reused unchanged), invokes it, and commits on success.
func (r *DefaultSubtaskRunner) RunSubtask(ctx context.Context, workerID string, section models.Task, subtask Subtask, model string) (Subtask, error) {
	if r.WorktreePath != "" {
		for _, f := range subtask.Files {
			if _, err := (&ToolSurface{WorktreeRoot: r.WorktreePath}).normalize(f); err != nil {
				subtask.Status = "failed"
				subtask.Error = err
				return subtask, err
			}
		}
	}

	prompt := buildSubtaskPrompt(section, subtask)

	invocationTask := models.Task{
		Number: subtask.ID,
		Name:   subtask.Name,
		Files:  subtask.Files,
		Prompt: prompt,
		Agent:  section.Agent,
	}

	result, err := r.Invoker.Invoke(ctx, invocationTask)
	if err != nil {
		subtask.Status = "failed"
		subtask.Error = NewTaskError(subtask.ID, "subtask invocation failed", err)
		return subtask, subtask.Error
	}

	subtask.TurnsUsed = countTurns(result)
	subtask.Metrics.Model = model
	subtask.Metrics.CostUSD = result.CostUSD

	if subtask.MaxTurns > 0 && subtask.TurnsUsed > subtask.MaxTurns {
		subtask.Status = "failed"
		subtask.Error = &TurnBudgetExceededError{SubtaskID: subtask.ID, MaxTurns: subtask.MaxTurns}
		return subtask, subtask.Error
	}

	if result.Error != nil {
		subtask.Status = "failed"
		subtask.Error = NewTaskError(subtask.ID, "agent reported failure", result.Error)
		return subtask, subtask.Error
	}

	if r.Typecheck != nil && editCrossesCheckCadence(len(subtask.Files)) {
		if out, passed, tcErr := r.Typecheck(ctx); tcErr == nil && !passed {
			subtask.Error = fmt.Errorf("incremental typecheck failed: %s", firstLine(out))
		}
	}

	changed, err := r.changedFiles(ctx)
	if err != nil {
		subtask.Status = "failed"
		subtask.Error = fmt.Errorf("detect changed files: %w", err)
		return subtask, subtask.Error
	}

	if len(changed) > 0 {
		hash, err := r.commit(ctx, workerID, subtask)
		if err != nil {
			subtask.Status = "failed"
			subtask.Error = fmt.Errorf("commit subtask: %w", err)
			return subtask, subtask.Error
		}
		subtask.CommitHash = hash
		subtask.Metrics.FilesChanged = len(changed)
	}

	subtask.Status = "done"
	// A typecheck failure does not abort the subtask, but it is surfaced as
	// the subtask's error so the section-level aggregation still counts it
	// (§4.4 failure semantics: "included in the final error list if still
	// failing at completion").
	return subtask, subtask.Error
}

// editCrossesCheckCadence reports whether this subtask's edit count should
// trigger the §4.4 step-2 incremental-typecheck cadence of one check per 3
// observed edits. Subtasks run one agent invocation covering their whole
// file group, so the cadence is evaluated once per subtask against its
// file count rather than per individual tool call.
func editCrossesCheckCadence(editCount int) bool {
	return editCount > 0 && editCount%3 == 0 || editCount >= 3
}

// countTurns reports the agentic turn count the invocation consumed,
// preferring the claude CLI's reported num_turns (§4.4 step 2); when the
// CLI output omits it, the invocation itself counts as a single turn,
// matching the legacy single-session path's accounting.
func countTurns(result *agent.InvocationResult) int {
	if result == nil {
		return 0
	}
	if result.NumTurns > 0 {
		return result.NumTurns
	}
	return 1
}

func (r *DefaultSubtaskRunner) changedFiles(ctx context.Context) ([]string, error) {
	out, err := r.CommandRunner.Run(ctx, "git status --porcelain")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		files = append(files, fields[len(fields)-1])
	}
	return files, nil
}

func (r *DefaultSubtaskRunner) commit(ctx context.Context, workerID string, subtask Subtask) (string, error) {
	if _, err := r.CommandRunner.Run(ctx, "git add -A"); err != nil {
		return "", err
	}
	message := fmt.Sprintf("[BVS:%s] %s", workerID, subtask.Name)
	if _, err := r.CommandRunner.Run(ctx, "git commit -m "+strconv.Quote(message)); err != nil {
		return "", err
	}
	out, err := r.CommandRunner.Run(ctx, "git rev-parse HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func buildSubtaskPrompt(section models.Task, subtask Subtask) string {
	var b strings.Builder
	b.WriteString(agent.EnhancePromptForClaude4(fmt.Sprintf("Subtask: %s\n\n", subtask.Name)))
	b.WriteString(agent.XMLSection("section_context", section.Prompt))
	b.WriteString("\n")
	b.WriteString(agent.XMLList("files", subtask.Files))
	b.WriteString("\n")
	b.WriteString(agent.XMLTag("instruction", "Call mark_complete when this subtask's files are fully implemented."))
	return b.String()
}

// ExecuteSectionWithSubtasks is the C4 public contract named in §4.4:
// executeSectionWithSubtasks(cfg) -> WorkerResult.
func ExecuteSectionWithSubtasks(ctx context.Context, runner SubtaskRunner, workerID string, section models.Task, sectionScore int) WorkerResult {
	subtasks := ClassifySubtasks(section.Number, section.Files)

	result := WorkerResult{SectionID: section.Number, WorkerID: workerID, Success: true}

	for _, subtask := range subtasks {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, ctx.Err())
			break
		}

		model := complexity.SubtaskModel(sectionScore, len(subtask.Files))
		executed, err := runner.RunSubtask(ctx, workerID, section, subtask, model)
		result.Subtasks = append(result.Subtasks, executed)
		result.TotalTurns += executed.TurnsUsed

		if err != nil {
			// A failed subtask (or a still-failing incremental typecheck)
			// does not abort the section (§4.4 failure semantics); later
			// subtasks still run, and a successful commit already made by
			// this subtask is still tracked below.
			result.Success = false
			result.Errors = append(result.Errors, err)
		}
		if executed.CommitHash != "" {
			result.Commits = append(result.Commits, executed.CommitHash)
			result.FilesChanged += executed.Metrics.FilesChanged
		}
	}

	for _, st := range result.Subtasks {
		if st.Status != "done" {
			result.Success = false
		}
	}

	return result
}
