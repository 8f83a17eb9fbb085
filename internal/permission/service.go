package permission

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/accessctl/internal"
	permissionDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
	"github.com/frahmantamala/accessctl/internal/core/events"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*permissionDatamodel.Permission, error)
	GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error)
	GetByName(ctx context.Context, name string) (*permissionDatamodel.Permission, error)
	Create(ctx context.Context, p *permissionDatamodel.Permission) error
	Update(ctx context.Context, p *permissionDatamodel.Permission) error
	// Delete fails with internal.ErrPermissionInUse when roles still hold
	// the permission and cascade is false.
	Delete(ctx context.Context, id int64, cascade bool) error
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

func (s *Service) List(ctx context.Context) ([]*Permission, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list permissions", "error", err)
		return nil, internal.NewInternalError("failed to list permissions", err)
	}

	out := make([]*Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Permission, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get permission", "permission_id", id, "error", err)
		return nil, internal.NewInternalError("failed to get permission", err)
	}
	if row == nil {
		return nil, internal.ErrPermissionNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto PermissionDTO) (*Permission, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	if err := s.ensureNameFree(ctx, dto.Name, 0); err != nil {
		return nil, err
	}

	row := &permissionDatamodel.Permission{
		Name:        dto.Name,
		Resource:    dto.Resource,
		Action:      dto.Action,
		Description: dto.Description,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.storageError(ctx, "create", err)
	}

	s.logger.InfoContext(ctx, "permission created", "permission_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto PermissionDTO) (*Permission, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, "load", err)
	}
	if row == nil {
		return nil, internal.ErrPermissionNotFound
	}

	if dto.Name != row.Name {
		if err := s.ensureNameFree(ctx, dto.Name, id); err != nil {
			return nil, err
		}
	}

	oldName := row.Name
	row.Name = dto.Name
	row.Resource = dto.Resource
	row.Action = dto.Action
	row.Description = dto.Description
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, s.storageError(ctx, "update", err)
	}

	s.logger.InfoContext(ctx, "permission updated", "permission_id", id, "old_name", oldName, "name", row.Name)
	if err := s.announce(ctx, row, "update"); err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.storageError(ctx, "load", err)
	}
	if row == nil {
		return internal.ErrPermissionNotFound
	}

	if err := s.repo.Delete(ctx, id, s.deletePolicy == internal.DeletePolicyCascade); err != nil {
		if errors.Is(err, internal.ErrPermissionInUse) {
			s.logger.InfoContext(ctx, "permission delete rejected, still granted", "permission_id", id, "name", row.Name)
			return internal.ErrPermissionInUse
		}
		return s.storageError(ctx, "delete", err)
	}

	s.logger.InfoContext(ctx, "permission deleted", "permission_id", id, "name", row.Name, "policy", s.deletePolicy)
	return s.announce(ctx, row, "delete")
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return s.storageError(ctx, "lookup", err)
	}
	if existing != nil && existing.ID != selfID {
		return internal.ErrPermissionExists
	}
	return nil
}

// announce runs cache invalidation before the mutation is acknowledged.
func (s *Service) announce(ctx context.Context, row *permissionDatamodel.Permission, op string) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishSync(ctx, events.NewPermissionChangedEvent(row.ID, row.Name, op)); err != nil {
		s.logger.ErrorContext(ctx, "permission change saved but invalidation failed", "permission_id", row.ID, "error", err)
		return internal.NewInternalError("permission saved but cache invalidation failed", err)
	}
	return nil
}

func (s *Service) storageError(ctx context.Context, op string, err error) error {
	if errors.Is(err, internal.ErrPermissionExists) {
		return internal.ErrPermissionExists
	}
	s.logger.ErrorContext(ctx, "permission storage failed", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op+" permission", err)
}
