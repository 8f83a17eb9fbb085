package rbac

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/frahmantamala/accessctl/internal/rbac"

// Resolver is safe for concurrent use. Its only mutable state lives in the
// injected Cache.
type Resolver struct {
	source RoleSource
	cache  Cache
	logger *slog.Logger
	meter  metric.Meter

	resolutions   metric.Int64Counter
	danglingRoles metric.Int64Counter
}

type Option func(*Resolver)

func WithCache(c Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(r *Resolver) {
		if m != nil {
			r.meter = m
		}
	}
}

func NewResolver(source RoleSource, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		cache:  NoopCache{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		meter:  otel.GetMeterProvider().Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.resolutions, err = r.meter.Int64Counter("rbac.resolutions",
		metric.WithDescription("Permission resolutions by cache outcome"))
	if err != nil {
		r.resolutions = noop.Int64Counter{}
	}
	r.danglingRoles, err = r.meter.Int64Counter("rbac.dangling_roles",
		metric.WithDescription("Role names held by users that match no stored role"))
	if err != nil {
		r.danglingRoles = noop.Int64Counter{}
	}
	return r
}

// ResolvePermissions returns the union of the permission sets of every role
// the user holds. Role names without a stored role contribute nothing.
func (r *Resolver) ResolvePermissions(ctx context.Context, user User) (PermissionSet, error) {
	set := make(PermissionSet)
	names := uniqueNames(user.Roles)
	if len(names) == 0 {
		return set, nil
	}

	cacheable := true
	epoch, err := r.cache.Epoch(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "rbac cache unavailable, reading roles from source", "error", err)
		cacheable = false
	}

	missing := names
	if cacheable {
		missing = make([]string, 0, len(names))
		for _, name := range names {
			perms, ok, err := r.cache.Get(ctx, epoch, name)
			if err != nil {
				r.logger.WarnContext(ctx, "rbac cache read failed", "role", name, "error", err)
			}
			if !ok {
				missing = append(missing, name)
				continue
			}
			set.Add(perms...)
		}
	}

	outcome := "hit"
	if len(missing) > 0 {
		outcome = "miss"
		if err := r.fill(ctx, user, set, missing, epoch, cacheable); err != nil {
			r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
			return nil, err
		}
	}
	r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return set, nil
}

func (r *Resolver) fill(ctx context.Context, user User, set PermissionSet, names []string, epoch uint64, cacheable bool) error {
	roles, err := r.source.RolesByNames(ctx, names)
	if err != nil {
		return fmt.Errorf("load roles for user %d: %w", user.ID, err)
	}

	found := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		found[role.Name] = struct{}{}
		set.Add(role.Permissions...)
		if !cacheable {
			continue
		}
		if err := r.cache.Set(ctx, epoch, role.Name, role.Permissions); err != nil {
			r.logger.WarnContext(ctx, "rbac cache write failed", "role", role.Name, "error", err)
		}
	}

	for _, name := range names {
		if _, ok := found[name]; ok {
			continue
		}
		// Reported as a warning by the integrity worker, not per request.
		r.danglingRoles.Add(ctx, 1)
		r.logger.DebugContext(ctx, "user holds a role that does not exist",
			"user_id", user.ID,
			"role", name)
	}
	return nil
}

// HasPermission reports whether name is in the user's resolved set. An
// unknown permission name is simply absent.
func (r *Resolver) HasPermission(ctx context.Context, user User, name string) (bool, error) {
	set, err := r.ResolvePermissions(ctx, user)
	if err != nil {
		return false, err
	}
	return set.Has(name), nil
}

// HasAnyPermission is false for an empty list.
func (r *Resolver) HasAnyPermission(ctx context.Context, user User, names []string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	set, err := r.ResolvePermissions(ctx, user)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if set.Has(name) {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions is true for an empty list.
func (r *Resolver) HasAllPermissions(ctx context.Context, user User, names []string) (bool, error) {
	if len(names) == 0 {
		return true, nil
	}
	set, err := r.ResolvePermissions(ctx, user)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if !set.Has(name) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Resolver) HasRole(user User, name string) bool {
	return HasRole(user, name)
}

func (r *Resolver) HasAnyRole(user User, names []string) bool {
	return HasAnyRole(user, names)
}

func (r *Resolver) HasAllRoles(user User, names []string) bool {
	return HasAllRoles(user, names)
}
