package role

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/accessctl/internal"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	"github.com/frahmantamala/accessctl/internal/core/events"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*roleDatamodel.Role, error)
	GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error)
	GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error)
	// Create stores the role and its initial grants atomically.
	Create(ctx context.Context, r *roleDatamodel.Role, permissionIDs []int64) error
	// Update rewrites user_roles in the same transaction when the name changes.
	Update(ctx context.Context, r *roleDatamodel.Role, oldName string) error
	// Delete fails with internal.ErrRoleInUse when users still hold the role
	// and cascade is false.
	Delete(ctx context.Context, r *roleDatamodel.Role, cascade bool) error
	// ReplacePermissions fails with internal.ErrPermissionNotFound, leaving
	// the role untouched, when any id is unknown.
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

type Service struct {
	repo         RepositoryAPI
	publisher    events.Publisher
	deletePolicy internal.DeletePolicy
	logger       *slog.Logger
}

func NewService(repo RepositoryAPI, publisher events.Publisher, deletePolicy internal.DeletePolicy, logger *slog.Logger) *Service {
	if deletePolicy == "" {
		deletePolicy = internal.DeletePolicyReject
	}
	return &Service{
		repo:         repo,
		publisher:    publisher,
		deletePolicy: deletePolicy,
		logger:       logger,
	}
}

func (s *Service) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.storageError(ctx, "list", err)
	}

	out := make([]*Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	if err := s.ensureNameFree(ctx, dto.Name, 0); err != nil {
		return nil, err
	}

	row := &roleDatamodel.Role{Name: dto.Name, Description: dto.Description}
	if err := s.repo.Create(ctx, row, dto.PermissionIDs); err != nil {
		return nil, s.storageError(ctx, "create", err)
	}

	s.logger.InfoContext(ctx, "role created", "role_id", row.ID, "name", row.Name, "permissions", len(dto.PermissionIDs))
	// Users may already hold this name from before it existed.
	if err := s.announce(ctx, row.ID, "create", row.Name); err != nil {
		return nil, err
	}
	return s.Get(ctx, row.ID)
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	oldName := row.Name
	if dto.Name != oldName {
		if row.IsSystem {
			return nil, internal.ErrSystemRoleProtected
		}
		if err := s.ensureNameFree(ctx, dto.Name, id); err != nil {
			return nil, err
		}
	}

	row.Name = dto.Name
	row.Description = dto.Description
	if err := s.repo.Update(ctx, row, oldName); err != nil {
		return nil, s.storageError(ctx, "update", err)
	}

	s.logger.InfoContext(ctx, "role updated", "role_id", id, "old_name", oldName, "name", row.Name)
	names := []string{row.Name}
	if oldName != row.Name {
		names = append(names, oldName)
	}
	if err := s.announce(ctx, id, "update", names...); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	row, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if row.IsSystem {
		return internal.ErrSystemRoleProtected
	}

	if err := s.repo.Delete(ctx, row, s.deletePolicy == internal.DeletePolicyCascade); err != nil {
		if errors.Is(err, internal.ErrRoleInUse) {
			s.logger.InfoContext(ctx, "role delete rejected, still assigned", "role_id", id, "name", row.Name)
			return internal.ErrRoleInUse
		}
		return s.storageError(ctx, "delete", err)
	}

	s.logger.InfoContext(ctx, "role deleted", "role_id", id, "name", row.Name, "policy", s.deletePolicy)
	return s.announce(ctx, id, "delete", row.Name)
}

// ReplacePermissions sets the role's permissions to exactly permissionIDs.
// Duplicates collapse; an empty list clears the role. An actor holding the
// role may shrink it but not grow it. A nil actor is an internal caller.
func (s *Service) ReplacePermissions(ctx context.Context, actor *internal.Principal, id int64, dto ReplacePermissionsDTO) (*Role, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}
	dto.Normalize()

	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor != nil && holds(actor, row.Name) {
		if gained := grown(row, dto.PermissionIDs); len(gained) > 0 {
			s.logger.WarnContext(ctx, "self escalation rejected",
				"user_id", actor.ID,
				"role", row.Name,
				"gained_permission_ids", gained)
			return nil, internal.ErrSelfEscalation
		}
	}

	if err := s.repo.ReplacePermissions(ctx, id, dto.PermissionIDs); err != nil {
		if errors.Is(err, internal.ErrPermissionNotFound) {
			return nil, internal.ErrPermissionNotFound
		}
		return nil, s.storageError(ctx, "replace permissions of", err)
	}

	s.logger.InfoContext(ctx, "role permissions replaced", "role_id", id, "name", row.Name, "permission_ids", dto.PermissionIDs)
	if err := s.announce(ctx, id, "replace_permissions", row.Name); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) load(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, "load", err)
	}
	if row == nil {
		return nil, internal.ErrRoleNotFound
	}
	return row, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return s.storageError(ctx, "lookup", err)
	}
	if existing != nil && existing.ID != selfID {
		return internal.ErrRoleExists
	}
	return nil
}

func (s *Service) announce(ctx context.Context, roleID int64, op string, names ...string) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishSync(ctx, events.NewRoleChangedEvent(roleID, op, names...)); err != nil {
		s.logger.ErrorContext(ctx, "role change saved but invalidation failed", "role_id", roleID, "error", err)
		return internal.NewInternalError("role saved but cache invalidation failed", err)
	}
	return nil
}

func (s *Service) storageError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, internal.ErrRoleExists):
		return internal.ErrRoleExists
	case errors.Is(err, internal.ErrPermissionNotFound):
		return internal.ErrPermissionNotFound
	}
	s.logger.ErrorContext(ctx, "role storage failed", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op+" role", err)
}

func holds(actor *internal.Principal, roleName string) bool {
	for _, r := range actor.Roles {
		if r == roleName {
			return true
		}
	}
	return false
}

// grown returns the ids in next that the role does not grant yet.
func grown(row *roleDatamodel.Role, next []int64) []int64 {
	current := make(map[int64]struct{}, len(row.Permissions))
	for _, p := range row.Permissions {
		current[p.ID] = struct{}{}
	}
	var out []int64
	for _, id := range next {
		if _, ok := current[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
