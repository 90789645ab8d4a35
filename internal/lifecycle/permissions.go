package lifecycle

import "github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"

// Operation names an action a caller can attempt.
type Operation string

const (
	OpCreate       Operation = "create pickups"
	OpList         Operation = "list pickups"
	OpAssign       Operation = "assign pickups"
	OpUpdateStatus Operation = "update pickup status"
	OpRate         Operation = "rate pickups"
	OpChat         Operation = "chat about pickups"
	OpStats        Operation = "view stats"
	OpManageUsers  Operation = "manage users"
)

// permissions is the single source of truth for role gating. Resource-level
// checks (ownership, bound collector) happen after this gate.
var permissions = map[Operation]map[data.Role]bool{
	OpCreate:       {data.RoleHousehold: true},
	OpList:         {data.RoleHousehold: true, data.RoleCollector: true, data.RoleAdmin: true},
	OpAssign:       {data.RoleCollector: true, data.RoleAdmin: true},
	OpUpdateStatus: {data.RoleHousehold: true, data.RoleCollector: true, data.RoleAdmin: true},
	OpRate:         {data.RoleHousehold: true},
	OpChat:         {data.RoleHousehold: true, data.RoleCollector: true, data.RoleAdmin: true},
	OpStats:        {data.RoleHousehold: true, data.RoleCollector: true, data.RoleAdmin: true},
	OpManageUsers:  {data.RoleAdmin: true},
}

// Allowed reports whether role may attempt op.
func Allowed(op Operation, role data.Role) bool {
	return permissions[op][role]
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string
	Role data.Role
}

func authorize(op Operation, c Caller) error {
	if c.ID == "" {
		return fail(ErrUnauthenticated, "authentication required")
	}
	if !Allowed(op, c.Role) {
		return fail(ErrForbidden, "%s accounts cannot %s", roleOrUnknown(c.Role), op)
	}
	return nil
}

func roleOrUnknown(r data.Role) string {
	if r == "" {
		return "unknown role"
	}
	return string(r)
}
