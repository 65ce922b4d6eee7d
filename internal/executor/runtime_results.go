package executor

import "github.com/bvs-orchestrator/bvs/internal/models"

// Type aliases for shared runtime enforcement results.
type (
	TestCommandResult           = models.TestCommandResult
	CriterionVerificationResult = models.CriterionVerificationResult
	DocTargetResult             = models.DocTargetResult
)
