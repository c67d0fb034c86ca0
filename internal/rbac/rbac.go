package rbac

import "fmt"

// Role is an admin privilege level. Roles form a strict total order:
// MODERATOR < ADMIN < SUPER_ADMIN. All "at least this role" checks go
// through Rank so the ordering lives in exactly one place.
type Role string

const (
	RoleModerator  Role = "MODERATOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var roleRanks = map[Role]int{
	RoleModerator:  1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// Rank returns the numeric position of the role in the hierarchy.
// Unknown roles rank 0 and therefore satisfy no gate.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return roleRanks[r] != 0
}

// AtLeast reports whether r meets a minimum-role gate.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

// ParseRole validates a raw role string from a request or config file.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Permission is a "resource:action" tag. Permissions are compiled in,
// not stored; the store only records each admin's role.
type Permission string

const (
	PermVideosRead        Permission = "videos:read"
	PermVideosWrite       Permission = "videos:write"
	PermCollectionsRead   Permission = "collections:read"
	PermCollectionsWrite  Permission = "collections:write"
	PermFamiliesRead      Permission = "families:read"
	PermFamiliesWrite     Permission = "families:write"
	PermChildrenRead      Permission = "children:read"
	PermChildrenWrite     Permission = "children:write"
	PermScreenTimeRead    Permission = "screentime:read"
	PermScreenTimeWrite   Permission = "screentime:write"
	PermNotificationsSend Permission = "notifications:send"
	PermCommandsSend      Permission = "commands:send"
	PermUsersRead         Permission = "users:read"
	PermUsersWrite        Permission = "users:write"
	PermUsersDelete       Permission = "users:delete"
	PermAdminsRead        Permission = "admins:read"
	PermAdminsWrite       Permission = "admins:write"
	PermTokensRevoke      Permission = "tokens:revoke"
)

// moderatorPerms is the base read-mostly set. Each higher role extends the
// one below it, mirroring the role order.
var moderatorPerms = []Permission{
	PermVideosRead,
	PermCollectionsRead,
	PermFamiliesRead,
	PermChildrenRead,
	PermScreenTimeRead,
	PermUsersRead,
}

var adminPerms = append(moderatorPerms[:len(moderatorPerms):len(moderatorPerms)],
	PermVideosWrite,
	PermCollectionsWrite,
	PermFamiliesWrite,
	PermChildrenWrite,
	PermScreenTimeWrite,
	PermNotificationsSend,
	PermCommandsSend,
	PermUsersWrite,
	PermTokensRevoke,
)

var superAdminPerms = append(adminPerms[:len(adminPerms):len(adminPerms)],
	PermUsersDelete,
	PermAdminsRead,
	PermAdminsWrite,
)

var rolePerms = map[Role]map[Permission]bool{
	RoleModerator:  permSet(moderatorPerms),
	RoleAdmin:      permSet(adminPerms),
	RoleSuperAdmin: permSet(superAdminPerms),
}

func permSet(perms []Permission) map[Permission]bool {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// Permissions returns the full permission set for a role. Unknown roles
// get an empty set.
func Permissions(r Role) []Permission {
	switch r {
	case RoleModerator:
		return moderatorPerms
	case RoleAdmin:
		return adminPerms
	case RoleSuperAdmin:
		return superAdminPerms
	default:
		return nil
	}
}

// HasPermission reports whether the role holds the given tag. Unknown
// roles or tags are false, never an error.
func HasPermission(r Role, p Permission) bool {
	return rolePerms[r][p]
}

// HasAll reports whether the role holds every tag in the list.
func HasAll(r Role, perms ...Permission) bool {
	for _, p := range perms {
		if !rolePerms[r][p] {
			return false
		}
	}
	return true
}

// HasAny reports whether the role holds at least one tag in the list.
func HasAny(r Role, perms ...Permission) bool {
	for _, p := range perms {
		if rolePerms[r][p] {
			return true
		}
	}
	return false
}
