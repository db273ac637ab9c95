package rbac

// Role names are part of the token contract; do not rename.
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleOperator   = "operator" // manages targets and runs tests
	RoleAnalyst    = "analyst"  // read-only reports
	RoleSuperAdmin = "super_admin"
)

// Groups used by the route table.
var (
	// CanRunAuctions may trigger live auctions from the API.
	CanRunAuctions = []string{RoleOwner, RoleAdmin, RoleOperator}
	// CanTestTargets may fire test traffic at buyer endpoints.
	CanTestTargets = []string{RoleOwner, RoleAdmin, RoleOperator}
	// CanReadReports may read target health.
	CanReadReports = []string{RoleOwner, RoleAdmin, RoleOperator, RoleAnalyst}
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
