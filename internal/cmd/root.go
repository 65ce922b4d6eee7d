package cmd

import (
	"github.com/bvs-orchestrator/bvs/internal/config"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// BVSRepoRoot is the path to the bvs repository root
// Injected at build time via -ldflags
var BVSRepoRoot = ""

// GetBVSRepoRoot returns the bvs repository root path
// This is injected at build time and is guaranteed to be correct
func GetBVSRepoRoot() string {
	return BVSRepoRoot
}

// NewRootCommand creates and returns the root cobra command for bvs
func NewRootCommand() *cobra.Command {
	// Initialize config with build-time injected repository root
	// This ensures database location is always correctly resolved
	config.SetBuildTimeRepoRoot(BVSRepoRoot)

	cmd := &cobra.Command{
		Use:   "bvs",
		Short: "Autonomous multi-agent orchestration system",
		Long: `BVS executes implementation plans by spawning and managing
multiple Claude Code CLI agents in coordinated waves.

It parses plan files (Markdown or YAML), calculates task dependencies,
and orchestrates parallel execution of tasks across multiple agents.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewLearningCommand())
	cmd.AddCommand(NewObserveCommand())

	return cmd
}
