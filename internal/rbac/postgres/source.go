package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/frahmantamala/accessctl/internal/rbac"
	"github.com/jmoiron/sqlx"
)

// RoleSource reads roles and their permissions in a single round trip.
type RoleSource struct {
	db *sqlx.DB
}

func NewRoleSource(db *sqlx.DB) *RoleSource {
	return &RoleSource{db: db}
}

type roleRow struct {
	RoleID          int64          `db:"role_id"`
	RoleName        string         `db:"role_name"`
	RoleDescription sql.NullString `db:"role_description"`
	IsSystem        bool           `db:"is_system"`
	PermissionID    sql.NullInt64  `db:"permission_id"`
	PermissionName  sql.NullString `db:"permission_name"`
	Resource        sql.NullString `db:"resource"`
	Action          sql.NullString `db:"action"`
	PermDescription sql.NullString `db:"permission_description"`
}

const rolesByNamesQuery = `
SELECT r.id AS role_id,
       r.name AS role_name,
       r.description AS role_description,
       r.is_system,
       p.id AS permission_id,
       p.name AS permission_name,
       p.resource,
       p.action,
       p.description AS permission_description
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE r.name IN (?)
ORDER BY r.name, p.name`

func (s *RoleSource) RolesByNames(ctx context.Context, names []string) ([]rbac.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(rolesByNamesQuery, names)
	if err != nil {
		return nil, fmt.Errorf("build roles query: %w", err)
	}

	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}

	var (
		roles []rbac.Role
		index = make(map[int64]int)
	)
	for _, row := range rows {
		i, ok := index[row.RoleID]
		if !ok {
			roles = append(roles, rbac.Role{
				ID:          row.RoleID,
				Name:        row.RoleName,
				Description: row.RoleDescription.String,
				IsSystem:    row.IsSystem,
				Permissions: []rbac.Permission{},
			})
			i = len(roles) - 1
			index[row.RoleID] = i
		}
		if !row.PermissionID.Valid {
			continue
		}
		roles[i].Permissions = append(roles[i].Permissions, rbac.Permission{
			ID:          row.PermissionID.Int64,
			Name:        row.PermissionName.String,
			Resource:    row.Resource.String,
			Action:      row.Action.String,
			Description: row.PermDescription.String,
		})
	}
	return roles, nil
}

// DanglingRole is a user_roles entry whose role name matches no role.
type DanglingRole struct {
	UserID   int64  `db:"user_id"`
	Email    string `db:"email"`
	RoleName string `db:"role_name"`
}

func (s *RoleSource) DanglingRoles(ctx context.Context) ([]DanglingRole, error) {
	const query = `
SELECT ur.user_id, u.email, ur.role_name
FROM user_roles ur
JOIN users u ON u.id = ur.user_id
LEFT JOIN roles r ON r.name = ur.role_name
WHERE r.id IS NULL
ORDER BY ur.user_id, ur.role_name`

	var out []DanglingRole
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("select dangling roles: %w", err)
	}
	return out, nil
}
