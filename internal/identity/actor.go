package identity

// Role enumerates the approval roles known to the workflow engine.
type Role string

const (
	RoleStaff               Role = "staff"
	RoleProcurementManager  Role = "procurement_manager"
	RoleExecutive           Role = "executive"
	RoleChairman            Role = "chairman"
	RoleSupplyChainDirector Role = "supply_chain_director"
	RoleFinance             Role = "finance"
)

// Actor identifies who is performing a workflow command. It is threaded
// explicitly into every service call; the engine never looks identity up
// from ambient state.
type Actor struct {
	ID   int64
	Name string
	Role Role
}

// Valid reports whether the actor carries enough identity to act.
func (a Actor) Valid() bool {
	return a.ID != 0 && a.Role != ""
}
