// Package workflow defines the requisition approval state machine: stages,
// allowed transitions and their guards. It is pure; authorization and
// persistence are layered on top by the approval gate.
package workflow

import "github.com/meridian-procure/meridian-procure/internal/identity"

// Stage is the requisition's position in the approval chain. The value names
// whose desk the requisition is on; terminal stages name the outcome.
type Stage string

const (
	StageSubmitted   Stage = "submitted"
	StageProcurement Stage = "procurement"
	StageExecutive   Stage = "executive"
	StageChairman    Stage = "chairman"
	StageSupplyChain Stage = "supply_chain"
	StageFinance     Stage = "finance"
	StageApproved    Stage = "approved"
	StageRejected    Stage = "rejected"
	StageCompleted   Stage = "completed"
)

// Action enumerates history entry actions.
type Action string

const (
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StageCompleted
}

// Known reports whether s is a member of the stage enum.
func (s Stage) Known() bool {
	switch s {
	case StageSubmitted, StageProcurement, StageExecutive, StageChairman,
		StageSupplyChain, StageFinance, StageApproved, StageRejected, StageCompleted:
		return true
	}
	return false
}

// ProcurementEligible reports whether an RFQ may be dispatched for a
// requisition at this stage.
func (s Stage) ProcurementEligible() bool {
	switch s {
	case StageProcurement, StageExecutive, StageChairman, StageSupplyChain:
		return true
	}
	return false
}

// RoleFor returns the single role authorized to act at the given stage.
func RoleFor(stage Stage) (identity.Role, bool) {
	switch stage {
	case StageSubmitted, StageProcurement, StageApproved:
		return identity.RoleProcurementManager, true
	case StageExecutive:
		return identity.RoleExecutive, true
	case StageChairman:
		return identity.RoleChairman, true
	case StageSupplyChain:
		return identity.RoleSupplyChainDirector, true
	case StageFinance:
		return identity.RoleFinance, true
	}
	return "", false
}
