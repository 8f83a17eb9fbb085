package auth

import "github.com/frahmantamala/accessctl/internal/user"

// Permissions guarding the admin surface. The seed command creates them.
const (
	PermUsersRead        = "users.read"
	PermUsersCreate      = "users.create"
	PermUsersUpdate      = "users.update"
	PermUsersDelete      = "users.delete"
	PermUsersAssignRoles = user.AssignRolesPermission

	PermRolesRead   = "roles.read"
	PermRolesCreate = "roles.create"
	PermRolesUpdate = "roles.update"
	PermRolesDelete = "roles.delete"

	PermPermissionsRead   = "permissions.read"
	PermPermissionsCreate = "permissions.create"
	PermPermissionsUpdate = "permissions.update"
	PermPermissionsDelete = "permissions.delete"
)

type BuiltinPermission struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

var BuiltinPermissions = []BuiltinPermission{
	{PermUsersRead, "users", "read", "View users and their effective permissions"},
	{PermUsersCreate, "users", "create", "Create users"},
	{PermUsersUpdate, "users", "update", "Edit user profiles"},
	{PermUsersDelete, "users", "delete", "Delete users"},
	{PermUsersAssignRoles, "users", "assign_roles", "Replace the roles held by a user"},
	{PermRolesRead, "roles", "read", "View roles"},
	{PermRolesCreate, "roles", "create", "Create roles"},
	{PermRolesUpdate, "roles", "update", "Edit roles and their permission lists"},
	{PermRolesDelete, "roles", "delete", "Delete roles"},
	{PermPermissionsRead, "permissions", "read", "View permissions"},
	{PermPermissionsCreate, "permissions", "create", "Create permissions"},
	{PermPermissionsUpdate, "permissions", "update", "Edit permissions"},
	{PermPermissionsDelete, "permissions", "delete", "Delete permissions"},
}
