package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleChanged       = "role.changed"
	EventTypePermissionChanged = "permission.changed"
)

// RoleChangedEvent carries every role name whose permission set may differ
// after the mutation. On rename both the old and the new name are listed.
type RoleChangedEvent struct {
	BaseEvent
	RoleID    int64    `json:"role_id"`
	RoleNames []string `json:"role_names"`
	Operation string   `json:"operation"`
}

func NewRoleChangedEvent(roleID int64, operation string, roleNames ...string) *RoleChangedEvent {
	return &RoleChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRoleChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"role_id":    roleID,
				"role_names": roleNames,
				"operation":  operation,
			},
		},
		RoleID:    roleID,
		RoleNames: roleNames,
		Operation: operation,
	}
}

// PermissionChangedEvent is raised for any permission mutation. Roles that
// reference the permission are not enumerated, subscribers drop everything.
type PermissionChangedEvent struct {
	BaseEvent
	PermissionID int64  `json:"permission_id"`
	Name         string `json:"name"`
	Operation    string `json:"operation"`
}

func NewPermissionChangedEvent(permissionID int64, name, operation string) *PermissionChangedEvent {
	return &PermissionChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePermissionChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"permission_id": permissionID,
				"name":          name,
				"operation":     operation,
			},
		},
		PermissionID: permissionID,
		Name:         name,
		Operation:    operation,
	}
}
