package events

import (
	"context"
	"log/slog"
)

// LogChanges writes one audit line per role or permission mutation.
func LogChanges(bus *EventBus, lg *slog.Logger) {
	bus.Subscribe(EventTypeRoleChanged, func(ctx context.Context, event Event) error {
		if e, ok := event.(*RoleChangedEvent); ok {
			lg.InfoContext(ctx, "rbac audit: role changed",
				"event_id", e.ID,
				"role_id", e.RoleID,
				"roles", e.RoleNames,
				"operation", e.Operation)
		}
		return nil
	})
	bus.Subscribe(EventTypePermissionChanged, func(ctx context.Context, event Event) error {
		if e, ok := event.(*PermissionChangedEvent); ok {
			lg.InfoContext(ctx, "rbac audit: permission changed",
				"event_id", e.ID,
				"permission_id", e.PermissionID,
				"permission", e.Name,
				"operation", e.Operation)
		}
		return nil
	})
}
