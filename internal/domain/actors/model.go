package actors

import "time"

type Role string

const (
	RoleOperator   Role = "operator"
	RoleInspector  Role = "inspector"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

type Actor struct {
	ID        int64
	Name      string
	Role      Role
	CreatedAt time.Time
}

// bypassRoles — кто может снимать гейты waiver-ом. Единственное место,
// где роли маппятся на это право.
var bypassRoles = map[Role]bool{
	RoleSupervisor: true,
	RoleAdmin:      true,
}

func (a Actor) CanBypassGate() bool { return bypassRoles[a.Role] }
