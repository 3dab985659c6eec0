package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// DefaultHighValueThreshold routes requisitions above this estimated cost
// through the chairman. The boundary is exclusive: exactly the threshold does
// not escalate.
var DefaultHighValueThreshold = decimal.NewFromInt(1_000_000)

// HighValue reports whether the estimated cost escalates past the executive.
func HighValue(estimatedCost, threshold decimal.Decimal) bool {
	return estimatedCost.GreaterThan(threshold)
}

// Next returns the stage an approval at the given stage advances to. The
// escalation guard is consulted only at the executive step; callers must pass
// the escalation decision recorded at executive-approval time, never re-derive
// it from a later cost edit.
func Next(stage Stage, escalate bool) (Stage, error) {
	switch stage {
	case StageSubmitted:
		return StageProcurement, nil
	case StageProcurement:
		return StageExecutive, nil
	case StageExecutive:
		if escalate {
			return StageChairman, nil
		}
		return StageSupplyChain, nil
	case StageChairman:
		return StageSupplyChain, nil
	case StageSupplyChain:
		// Leaving supply_chain happens through the signed-PO upload, not a
		// bare approval.
		return "", fmt.Errorf("stage %s advances via signed purchase order upload: %w", stage, shared.ErrInvalidTransition)
	case StageFinance:
		return StageApproved, nil
	case StageApproved:
		return StageCompleted, nil
	}
	return "", fmt.Errorf("no approval transition from stage %s: %w", stage, shared.ErrInvalidTransition)
}

// SignPO is the supply-chain director's signature transition.
func SignPO(stage Stage) (Stage, error) {
	if stage != StageSupplyChain {
		return "", fmt.Errorf("signed purchase order requires stage %s, have %s: %w", StageSupplyChain, stage, shared.ErrInvalidTransition)
	}
	return StageFinance, nil
}

// RejectPO sends the requisition back for purchase order re-issue.
func RejectPO(stage Stage) (Stage, error) {
	if stage != StageSupplyChain {
		return "", fmt.Errorf("purchase order rejection requires stage %s, have %s: %w", StageSupplyChain, stage, shared.ErrInvalidTransition)
	}
	return StageProcurement, nil
}

// ReissuePO returns the requisition to the director's desk once a fresh
// unsigned purchase order is uploaded after a rejection.
func ReissuePO(stage Stage) (Stage, error) {
	if stage != StageProcurement {
		return "", fmt.Errorf("purchase order re-issue requires stage %s, have %s: %w", StageProcurement, stage, shared.ErrInvalidTransition)
	}
	return StageSupplyChain, nil
}

// Reject marks the requisition rejected from any non-terminal stage.
func Reject(stage Stage) (Stage, error) {
	if stage.Terminal() {
		return "", fmt.Errorf("stage %s is terminal: %w", stage, shared.ErrInvalidTransition)
	}
	return StageRejected, nil
}
