package session

import "strings"

// Role is the permission level of an operator.
type Role string

const (
	RoleHead    Role = "head"
	RoleManager Role = "manager"
)

// Access maps usernames to roles. Heads win when a username is on both lists.
type Access struct {
	roles map[string]Role
}

// NewAccess builds an access list from head and manager usernames.
func NewAccess(heads, managers []string) *Access {
	a := &Access{roles: make(map[string]Role, len(heads)+len(managers))}
	for _, u := range managers {
		if u = NormalizeUsername(u); u != "" {
			a.roles[u] = RoleManager
		}
	}
	for _, u := range heads {
		if u = NormalizeUsername(u); u != "" {
			a.roles[u] = RoleHead
		}
	}
	return a
}

// NormalizeUsername lower-cases a username and strips the leading @.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// RoleFor reports the role of username, if any.
func (a *Access) RoleFor(username string) (Role, bool) {
	role, ok := a.roles[NormalizeUsername(username)]
	return role, ok
}
