package rbac

import (
	"context"
	"fmt"

	"github.com/frahmantamala/accessctl/internal/core/events"
)

// Subscriber is the part of the event bus the invalidation hook needs.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// RegisterInvalidation keeps cache consistent with admin mutations. Services
// publish with PublishSync, so the eviction has happened by the time the
// mutation is acknowledged.
func RegisterInvalidation(bus Subscriber, cache Cache) {
	bus.Subscribe(events.EventTypeRoleChanged, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.RoleChangedEvent)
		if !ok {
			return cache.Purge(ctx)
		}
		if err := cache.Invalidate(ctx, e.RoleNames...); err != nil {
			return fmt.Errorf("invalidate roles %v: %w", e.RoleNames, err)
		}
		return nil
	})

	bus.Subscribe(events.EventTypePermissionChanged, func(ctx context.Context, _ events.Event) error {
		if err := cache.Purge(ctx); err != nil {
			return fmt.Errorf("purge permission cache: %w", err)
		}
		return nil
	})
}
