package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"github.com/frahmantamala/accessctl/internal/rbac"
)

// AssignRolesPermission guards every path that grants roles to a user.
const AssignRolesPermission = "users.assign_roles"

type RepositoryAPI interface {
	List(ctx context.Context) ([]*userDatamodel.User, error)
	// GetByID and GetByEmail return nil, nil when the user does not exist.
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User, roles []string, grantedBy *int64) error
	Update(ctx context.Context, u *userDatamodel.User) error
	Delete(ctx context.Context, id int64) error
	// ReplaceRoles fails with internal.ErrRoleNotFound, leaving the user
	// untouched, when any name has no stored role.
	ReplaceRoles(ctx context.Context, userID int64, roles []string, grantedBy *int64) error
	ExistingRoles(ctx context.Context, names []string) ([]string, error)
}

// Resolver is the part of rbac.Resolver the user service reads through.
type Resolver interface {
	ResolvePermissions(ctx context.Context, user rbac.User) (rbac.PermissionSet, error)
	HasPermission(ctx context.Context, user rbac.User, name string) (bool, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type Options struct {
	DefaultRoles    []string
	BulkConcurrency int
}

type Service struct {
	repo     RepositoryAPI
	resolver Resolver
	hasher   PasswordHasher
	opts     Options
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, resolver Resolver, hasher PasswordHasher, opts Options, logger *slog.Logger) *Service {
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 4
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		hasher:   hasher,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.storageError(ctx, "list", err)
	}

	out := make([]*User, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, "load", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(row), nil
}

// Create is the admin path. Every requested role must exist.
func (s *Service) Create(ctx context.Context, actor *internal.Principal, dto CreateUserDTO) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	if err := s.authorizeGrant(ctx, actor, dto.Roles); err != nil {
		return nil, err
	}

	if err := s.ensureRolesExist(ctx, dto.Roles); err != nil {
		return nil, err
	}

	active := true
	if dto.IsActive != nil {
		active = *dto.IsActive
	}

	var grantedBy *int64
	if actor != nil {
		grantedBy = &actor.ID
	}

	row, err := s.insert(ctx, dto.Email, dto.Name, dto.Phone, dto.Company, dto.Password, active, dto.Roles, grantedBy)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user created", "user_id", row.ID, "email", row.Email, "roles", dto.Roles, "granted_by", grantedBy)
	return s.Get(ctx, row.ID)
}

// Register is the public sign-up path. The user receives the configured
// default roles that currently exist.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	roles, err := s.repo.ExistingRoles(ctx, s.opts.DefaultRoles)
	if err != nil {
		return nil, s.storageError(ctx, "register", err)
	}
	if len(roles) != len(s.opts.DefaultRoles) {
		s.logger.WarnContext(ctx, "some default roles do not exist and were not granted",
			"configured", s.opts.DefaultRoles,
			"granted", roles)
	}

	row, err := s.insert(ctx, dto.Email, dto.Name, dto.Phone, dto.Company, dto.Password, true, roles, nil)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", row.ID, "email", row.Email, "roles", roles)
	return s.Get(ctx, row.ID)
}

func (s *Service) insert(ctx context.Context, email, name, phone, company, password string, active bool, roles []string, grantedBy *int64) (*userDatamodel.User, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.storageError(ctx, "lookup", err)
	}
	if existing != nil {
		return nil, internal.ErrEmailExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to hash password", "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	row := &userDatamodel.User{
		Email:        email,
		Name:         name,
		Phone:        phone,
		Company:      company,
		PasswordHash: hash,
		IsActive:     active,
	}
	if err := s.repo.Create(ctx, row, roles, grantedBy); err != nil {
		return nil, s.storageError(ctx, "create", err)
	}
	return row, nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, "load", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}

	row.Name = dto.Name
	row.Phone = dto.Phone
	row.Company = dto.Company
	if dto.IsActive != nil {
		row.IsActive = *dto.IsActive
	}
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, s.storageError(ctx, "update", err)
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", id, "is_active", row.IsActive)
	return s.Get(ctx, id)
}

// Delete removes the user together with its role assignments.
func (s *Service) Delete(ctx context.Context, id int64) error {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.storageError(ctx, "load", err)
	}
	if row == nil {
		return internal.ErrUserNotFound
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storageError(ctx, "delete", err)
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "email", row.Email)
	return nil
}

// ReplaceRoles sets the user's roles to exactly dto.Roles. An actor may drop
// its own roles but never add to them; that check runs before anything else
// is validated or read.
func (s *Service) ReplaceRoles(ctx context.Context, actor *internal.Principal, userID int64, dto ReplaceRolesDTO) (*User, error) {
	dto.Normalize()

	if actor != nil && actor.ID == userID {
		if gained := added(actor.Roles, dto.Roles); len(gained) > 0 {
			s.logger.WarnContext(ctx, "self promotion rejected",
				"user_id", userID,
				"requested", dto.Roles,
				"gained", gained)
			return nil, internal.ErrSelfPromotion
		}
	}

	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, s.storageError(ctx, "load", err)
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}

	var grantedBy *int64
	if actor != nil {
		grantedBy = &actor.ID
	}
	if err := s.repo.ReplaceRoles(ctx, userID, dto.Roles, grantedBy); err != nil {
		return nil, s.storageError(ctx, "replace roles of", err)
	}

	s.logger.InfoContext(ctx, "user roles replaced",
		"user_id", userID,
		"previous", FromDataModel(row).Roles,
		"roles", dto.Roles,
		"granted_by", grantedBy)
	return s.Get(ctx, userID)
}

// EffectivePermissions resolves a stored user's permissions as of now.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (*PermissionsResponse, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	set, err := s.resolver.ResolvePermissions(ctx, u.Subject())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve permissions", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to resolve permissions", err)
	}

	return &PermissionsResponse{
		UserID:      u.ID,
		Roles:       u.Roles,
		Permissions: set.List(),
	}, nil
}

func (s *Service) CheckPermission(ctx context.Context, userID int64, name string) (*PermissionCheckResponse, error) {
	if appErr := validation.ValidatePermissionName(name); appErr != nil {
		return nil, appErr
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.resolver.HasPermission(ctx, u.Subject(), name)
	if err != nil {
		s.logger.ErrorContext(ctx, "permission check failed", "user_id", userID, "permission", name, "error", err)
		return nil, internal.NewInternalError("failed to check permission", err)
	}

	return &PermissionCheckResponse{UserID: u.ID, Permission: name, Allowed: ok}, nil
}

// authorizeGrant requires the assign-roles permission when an actor creates
// a user with initial roles. A nil actor is an internal caller.
func (s *Service) authorizeGrant(ctx context.Context, actor *internal.Principal, roles []string) error {
	if actor == nil || len(roles) == 0 {
		return nil
	}
	subject := rbac.User{ID: actor.ID, Email: actor.Email, Roles: actor.Roles}
	ok, err := s.resolver.HasPermission(ctx, subject, AssignRolesPermission)
	if err != nil {
		return s.storageError(ctx, "authorize role grant for", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "role grant on create rejected",
			"actor_id", actor.ID,
			"roles", roles)
		return internal.ErrInsufficientPermissions
	}
	return nil
}

func (s *Service) ensureRolesExist(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	found, err := s.repo.ExistingRoles(ctx, names)
	if err != nil {
		return s.storageError(ctx, "lookup roles for", err)
	}
	if missing := added(found, names); len(missing) > 0 {
		return internal.ErrRoleNotFound.WithDetails(map[string]interface{}{"missing": missing})
	}
	return nil
}

func (s *Service) storageError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, internal.ErrEmailExists):
		return internal.ErrEmailExists
	case errors.Is(err, internal.ErrRoleNotFound):
		if appErr, ok := internal.IsAppError(err); ok {
			return appErr
		}
		return internal.ErrRoleNotFound
	}
	s.logger.ErrorContext(ctx, "user storage failed", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op+" user", err)
}

// added returns the names in next that are not in current.
func added(current, next []string) []string {
	held := make(map[string]struct{}, len(current))
	for _, r := range current {
		held[r] = struct{}{}
	}
	var out []string
	for _, r := range next {
		if _, ok := held[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
