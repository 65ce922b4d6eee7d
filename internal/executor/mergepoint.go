package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bvs-orchestrator/bvs/internal/agent"
	"github.com/bvs-orchestrator/bvs/internal/models"
)

// maxConflictBodyBytes bounds the size of an AI-resolved conflict body
// accepted for write (§4.5 safety invariant).
const maxConflictBodyBytes = 1 << 20 // 1 MiB

// CheckoutFailedError reports a failure to check out the merge point's
// target branch before integration begins (§4.5 step 1).
type CheckoutFailedError struct {
	Branch string
	Err    error
}

func (e *CheckoutFailedError) Error() string {
	return fmt.Sprintf("checkout %s failed: %v", e.Branch, e.Err)
}

func (e *CheckoutFailedError) Unwrap() error { return e.Err }

// MergeConflictUnresolvedError reports a merge point aborted because at
// least one conflicted path could not be resolved (§4.5 step 2c, §7).
type MergeConflictUnresolvedError struct {
	WorkerID string
	Paths    []string
}

func (e *MergeConflictUnresolvedError) Error() string {
	return fmt.Sprintf("merge of worker %s left %d conflict(s) unresolved: %s", e.WorkerID, len(e.Paths), strings.Join(e.Paths, ", "))
}

// MergeWorker identifies one completed worker's branch to integrate at a
// merge point (§4.5 inputs).
type MergeWorker struct {
	WorkerID  string
	SectionID string
	Branch    string // bvs-worker-<workerId>, per §6 branch naming
}

// ConflictRecord describes the resolution outcome for one conflicted path
// during a merge (§4.5 step 2c, §8 merge properties).
type ConflictRecord struct {
	WorkerID         string
	Path             string
	ResolutionMethod string // "ai" or "none"
}

// MergePointResult is the C5 public contract's return value (§4.5 step 4).
type MergePointResult struct {
	LevelIndex        int
	MergedWorkerIDs   []string
	FailedWorkerIDs   []string
	Conflicts         []ConflictRecord
	AutoResolvedCount int
	IntegrationPassed bool
	IntegrationOutput string
	Errors            []error
	Success           bool
}

// GetLevelIndex implements tts.MergePointResultDisplay.
func (r MergePointResult) GetLevelIndex() int { return r.LevelIndex }

// GetMergedCount implements tts.MergePointResultDisplay.
func (r MergePointResult) GetMergedCount() int { return len(r.MergedWorkerIDs) }

// GetFailedCount implements tts.MergePointResultDisplay.
func (r MergePointResult) GetFailedCount() int { return len(r.FailedWorkerIDs) }

// GetConflictCount implements tts.MergePointResultDisplay.
func (r MergePointResult) GetConflictCount() int { return len(r.Conflicts) }

// GetAutoResolvedCount implements tts.MergePointResultDisplay.
func (r MergePointResult) GetAutoResolvedCount() int { return r.AutoResolvedCount }

// GetIntegrationPassed implements tts.MergePointResultDisplay.
func (r MergePointResult) GetIntegrationPassed() bool { return r.IntegrationPassed }

// ConflictResolver asks an external agent to produce a resolved file body
// for one conflicted path, given the raw conflicted content and branch
// labels (§4.5 step 2c).
type ConflictResolver interface {
	Resolve(ctx context.Context, path, rawConflicted, branchLabel, sectionDescription string) (string, error)
}

// AgentConflictResolver implements ConflictResolver via the package's
// existing InvokerInterface seam, reusing the single-round prompt contract
// the subtask runner already uses for agent invocation.
type AgentConflictResolver struct {
	Invoker InvokerInterface
}

// Resolve invokes the agent once with the conflicting content and branch
// labels and returns its raw text response as the candidate resolved body.
func (r *AgentConflictResolver) Resolve(ctx context.Context, path, rawConflicted, branchLabel, sectionDescription string) (string, error) {
	var b strings.Builder
	b.WriteString(agent.EnhancePromptForClaude4(fmt.Sprintf("Resolve the merge conflict in %s.\n\n", path)))
	b.WriteString(agent.XMLTag("branch", branchLabel))
	b.WriteString(agent.XMLSection("section_description", sectionDescription))
	b.WriteString(agent.XMLSection("conflicted_content", rawConflicted))
	b.WriteString(agent.XMLTag("instruction", "Return only the complete resolved file body, with no conflict markers."))

	result, err := r.Invoker.Invoke(ctx, models.Task{Number: "merge-conflict", Name: path, Prompt: b.String()})
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", result.Error
	}
	return result.Output, nil
}

// MergePointCoordinator implements C5 (§4.5): the serial, per-level
// synchronization barrier that integrates each parallel worker's branch
// into the target branch, resolving conflicts with a single round of agent
// assistance and verifying the integrated result before the level is
// considered done.
type MergePointCoordinator struct {
	Runner       CommandRunner
	Resolver     ConflictResolver
	TargetBranch string
	RepoRoot     string // confinement root for conflict-body path validation

	// Verify runs integration verification (typecheck/lint/tests, §6) after
	// all workers are integrated. Optional; when nil, integration is
	// considered to pass trivially.
	Verify func(ctx context.Context) (output string, passed bool, err error)
}

// NewMergePointCoordinator constructs a coordinator wired to real git
// subprocess commands via runner and agent-assisted conflict resolution
// via invoker.
func NewMergePointCoordinator(runner CommandRunner, invoker InvokerInterface, targetBranch, repoRoot string) *MergePointCoordinator {
	return &MergePointCoordinator{
		Runner:       runner,
		Resolver:     &AgentConflictResolver{Invoker: invoker},
		TargetBranch: targetBranch,
		RepoRoot:     repoRoot,
	}
}

// RunMergePoint integrates workers' branches into the target branch in
// ascending workerId order (§4.5, §8 "merges apply in ascending workerId
// order"), then runs integration verification once all are merged.
func (m *MergePointCoordinator) RunMergePoint(ctx context.Context, levelIndex int, workers []MergeWorker, isFinalLevel bool) MergePointResult {
	result := MergePointResult{LevelIndex: levelIndex, Success: true}

	if _, err := m.Runner.Run(ctx, "git checkout "+m.TargetBranch); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, &CheckoutFailedError{Branch: m.TargetBranch, Err: err})
		return result
	}

	ordered := make([]MergeWorker, len(workers))
	copy(ordered, workers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].WorkerID < ordered[j].WorkerID })

	for _, w := range ordered {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, ctx.Err())
			break
		}

		committed, conflicts, err := m.mergeWorker(ctx, w)
		result.Conflicts = append(result.Conflicts, conflicts...)
		for _, c := range conflicts {
			if c.ResolutionMethod == "ai" {
				result.AutoResolvedCount++
			}
		}

		if err != nil {
			result.FailedWorkerIDs = append(result.FailedWorkerIDs, w.WorkerID)
			result.Errors = append(result.Errors, err)
			result.Success = false
			// An unresolvable conflict aborts the merge point entirely;
			// do not continue to subsequent workers (§4.5 step 2c).
			break
		}
		_ = committed
		result.MergedWorkerIDs = append(result.MergedWorkerIDs, w.WorkerID)
	}

	if !result.Success {
		return result
	}

	if m.Verify != nil {
		output, passed, err := m.Verify(ctx)
		result.IntegrationOutput = output
		result.IntegrationPassed = passed
		if err != nil {
			result.Errors = append(result.Errors, err)
			result.Success = false
		} else if !passed {
			result.Success = false
		}
	} else {
		result.IntegrationPassed = true
	}

	return result
}

// mergeWorker merges one worker's branch with --no-ff, resolving any
// conflicts with a single round of agent assistance per path (§4.5 step 2).
func (m *MergePointCoordinator) mergeWorker(ctx context.Context, w MergeWorker) (committed bool, conflicts []ConflictRecord, err error) {
	message := fmt.Sprintf("[BVS] Merge %s", w.Branch)
	_, mergeErr := m.Runner.Run(ctx, fmt.Sprintf("git merge --no-ff %s -m %s", w.Branch, strconv.Quote(message)))
	if mergeErr == nil {
		return true, nil, nil
	}

	conflictedOut, listErr := m.Runner.Run(ctx, "git diff --name-only --diff-filter=U")
	if listErr != nil {
		m.abort(ctx)
		return false, nil, &MergeConflictUnresolvedError{WorkerID: w.WorkerID, Paths: []string{"<unlistable>"}}
	}

	var paths []string
	for _, line := range strings.Split(conflictedOut, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	if len(paths) == 0 {
		// merge reported an error with no conflicted paths: not a content
		// conflict we can resolve; treat as unresolvable.
		m.abort(ctx)
		return false, nil, fmt.Errorf("merge of %s failed with no conflicted paths: %w", w.Branch, mergeErr)
	}

	var unresolved []string
	staged := false
	for _, path := range paths {
		record := ConflictRecord{WorkerID: w.WorkerID, Path: path, ResolutionMethod: "none"}

		raw, readErr := m.readRepoFile(path)
		if readErr != nil || strings.TrimSpace(raw) == "" {
			unresolved = append(unresolved, path)
			conflicts = append(conflicts, record)
			continue
		}

		if m.Resolver == nil {
			unresolved = append(unresolved, path)
			conflicts = append(conflicts, record)
			continue
		}

		resolved, resolveErr := m.Resolver.Resolve(ctx, path, raw, w.Branch, w.SectionID)
		if resolveErr != nil || !validResolvedBody(resolved) {
			unresolved = append(unresolved, path)
			conflicts = append(conflicts, record)
			continue
		}

		if writeErr := m.writeRepoFile(path, resolved); writeErr != nil {
			unresolved = append(unresolved, path)
			conflicts = append(conflicts, record)
			continue
		}
		if _, err := m.Runner.Run(ctx, "git add -- "+strconv.Quote(path)); err != nil {
			unresolved = append(unresolved, path)
			conflicts = append(conflicts, record)
			continue
		}

		record.ResolutionMethod = "ai"
		conflicts = append(conflicts, record)
		staged = true
	}

	if len(unresolved) > 0 {
		m.abort(ctx)
		return false, conflicts, &MergeConflictUnresolvedError{WorkerID: w.WorkerID, Paths: unresolved}
	}

	if staged {
		commitMsg := fmt.Sprintf("[BVS] Merge %s with auto-resolved conflicts", w.Branch)
		if _, err := m.Runner.Run(ctx, "git commit -m "+strconv.Quote(commitMsg)); err != nil {
			m.abort(ctx)
			return false, conflicts, fmt.Errorf("commit resolved merge of %s: %w", w.Branch, err)
		}
	}

	return true, conflicts, nil
}

func (m *MergePointCoordinator) abort(ctx context.Context) {
	_, _ = m.Runner.Run(ctx, "git merge --abort")
}

// validResolvedBody enforces the §4.5 safety invariants on an AI-produced
// conflict resolution: non-empty, no conflict markers, size-capped.
func validResolvedBody(body string) bool {
	if body == "" {
		return false
	}
	if len(body) > maxConflictBodyBytes {
		return false
	}
	for _, marker := range []string{"<<<<<<<", "=======", ">>>>>>>"} {
		if strings.Contains(body, marker) {
			return false
		}
	}
	return true
}

// readRepoFile and writeRepoFile confine file access to RepoRoot, rejecting
// any path that escapes it (§4.5 safety: "path confined to the repository").
func (m *MergePointCoordinator) readRepoFile(path string) (string, error) {
	full, err := m.confine(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MergePointCoordinator) writeRepoFile(path, content string) error {
	full, err := m.confine(path)
	if err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

func (m *MergePointCoordinator) confine(path string) (string, error) {
	root := m.RepoRoot
	if root == "" {
		root = "."
	}
	full := filepath.Join(root, path)
	normalizedRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	normalized, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if normalized != normalizedRoot && !strings.HasPrefix(normalized, normalizedRoot+string(filepath.Separator)) {
		return "", &PathEscapedError{Path: path}
	}
	return normalized, nil
}

// ReleaseWorktree removes a worker's worktree and deletes its branch after
// a successful merge point (§4.5 step 5). Cleanup failures are logged by
// the caller, not fatal.
func (m *MergePointCoordinator) ReleaseWorktree(ctx context.Context, worktreePath, branch string) error {
	if _, err := m.Runner.Run(ctx, "git worktree remove --force "+strconv.Quote(worktreePath)); err != nil {
		return err
	}
	_, err := m.Runner.Run(ctx, "git branch -D "+strconv.Quote(branch))
	return err
}
