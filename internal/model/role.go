package model

type Role string

const (
	RoleAdmin    Role = "admin"
	RolePastor   Role = "pastor"
	RoleLeader   Role = "leader"
	RoleCoLeader Role = "co_leader"
	// RoleMember is the fallback role every new account starts with.
	RoleMember Role = "member"
)

// InvitationRoles is the closed set of roles an invitation code can grant.
var InvitationRoles = []Role{RolePastor, RoleLeader, RoleCoLeader}

// Invitable reports whether r may be bound to an invitation code.
func (r Role) Invitable() bool {
	switch r {
	case RolePastor, RoleLeader, RoleCoLeader:
		return true
	}
	return false
}

// RequiresGroup reports whether holders of r are affiliated with a small group.
func (r Role) RequiresGroup() bool {
	return r == RoleLeader || r == RoleCoLeader
}

// CanAdminister reports whether r may manage invitation codes and groups.
func (r Role) CanAdminister() bool {
	return r == RoleAdmin || r == RolePastor
}

var roleRank = map[Role]int{
	RoleMember:   1,
	RoleCoLeader: 2,
	RoleLeader:   3,
	RolePastor:   4,
	RoleAdmin:    5,
}

// Rank orders roles by authority. Unknown roles rank lowest.
func (r Role) Rank() int {
	return roleRank[r]
}

// Outranks reports whether r carries strictly more authority than other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}
