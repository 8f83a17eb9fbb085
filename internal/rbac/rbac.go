// Package rbac answers authorization questions for a user from the role
// names it holds and the current role to permission table.
package rbac

import (
	"context"
	"sort"
)

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	IsSystem    bool         `json:"is_system"`
	Permissions []Permission `json:"permissions"`
}

// User is the subject of an authorization question.
type User struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// RoleSource loads roles with their current permissions. Unknown names are
// absent from the result, not an error.
type RoleSource interface {
	RolesByNames(ctx context.Context, names []string) ([]Role, error)
}

// PermissionSet is keyed by permission name.
type PermissionSet map[string]Permission

func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s PermissionSet) Add(perms ...Permission) {
	for _, p := range perms {
		s[p.Name] = p
	}
}

func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the set ordered by name.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for _, name := range s.Names() {
		out = append(out, s[name])
	}
	return out
}

func HasRole(user User, name string) bool {
	for _, r := range user.Roles {
		if r == name {
			return true
		}
	}
	return false
}

func HasAnyRole(user User, names []string) bool {
	for _, name := range names {
		if HasRole(user, name) {
			return true
		}
	}
	return false
}

func HasAllRoles(user User, names []string) bool {
	for _, name := range names {
		if !HasRole(user, name) {
			return false
		}
	}
	return true
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
