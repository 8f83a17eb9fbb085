package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/accessctl/internal/auth"
	permissionDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"github.com/frahmantamala/accessctl/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	clearData     bool
	adminEmail    string
	adminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed permissions, the built-in roles and an admin user",
	Long:  `Seed the admin permission catalogue, the admin, editor and viewer roles and one admin user. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		setupLogger(cfg.Observability.Logging)
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			return err
		}

		hash, err := auth.NewBcryptHasher(cfg.Security.BCryptCost).Hash(adminPassword)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}

		return seed(cmd.Context(), gdb, seedOptions{
			Clear:             clearData,
			AdminEmail:        adminEmail,
			AdminPasswordHash: hash,
		}, lg)
	},
}

type seedOptions struct {
	Clear             bool
	AdminEmail        string
	AdminPasswordHash string
}

type seedRole struct {
	Name        string
	Description string
	IsSystem    bool
	Permissions []string
}

// sample application permissions granted to editor and viewer
var contentPermissions = []auth.BuiltinPermission{
	{Name: "content.read", Resource: "content", Action: "read", Description: "Read content"},
	{Name: "content.write", Resource: "content", Action: "write", Description: "Create and edit content"},
}

func seedRoles() []seedRole {
	admin := seedRole{Name: "admin", Description: "Full administrator", IsSystem: true}
	for _, p := range auth.BuiltinPermissions {
		admin.Permissions = append(admin.Permissions, p.Name)
	}
	for _, p := range contentPermissions {
		admin.Permissions = append(admin.Permissions, p.Name)
	}

	return []seedRole{
		admin,
		{Name: "editor", Description: "Reads and writes content", Permissions: []string{"content.read", "content.write"}},
		{Name: "viewer", Description: "Reads content", Permissions: []string{"content.read"}},
	}
}

func seed(ctx context.Context, db *gorm.DB, opts seedOptions, lg *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.AdminEmail == "" {
		return errors.New("admin email is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Clear {
			for _, table := range []string{"user_roles", "role_permissions", "users", "roles", "permissions"} {
				if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
					return fmt.Errorf("clear %s: %w", table, err)
				}
			}
			lg.Warn("cleared existing rbac data")
		}

		permIDs := make(map[string]int64)
		catalogue := append(append([]auth.BuiltinPermission{}, auth.BuiltinPermissions...), contentPermissions...)
		for _, p := range catalogue {
			row := permissionDatamodel.Permission{
				Name:        p.Name,
				Resource:    p.Resource,
				Action:      p.Action,
				Description: p.Description,
			}
			if err := tx.Where(permissionDatamodel.Permission{Name: p.Name}).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Name, err)
			}
			permIDs[p.Name] = row.ID
		}
		lg.Info("seeded permissions", "count", len(permIDs))

		for _, r := range seedRoles() {
			row := roleDatamodel.Role{Name: r.Name, Description: r.Description, IsSystem: r.IsSystem}
			if err := tx.Omit("Permissions").Where(roleDatamodel.Role{Name: r.Name}).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.Name, err)
			}
			for _, name := range r.Permissions {
				link := roleDatamodel.RolePermission{RoleID: row.ID, PermissionID: permIDs[name]}
				if err := tx.Where(link).FirstOrCreate(&link).Error; err != nil {
					return fmt.Errorf("grant %s to %s: %w", name, r.Name, err)
				}
			}
			lg.Info("seeded role", "role", r.Name, "permissions", len(r.Permissions))
		}

		var admin userDatamodel.User
		err := tx.Where("email = ?", opts.AdminEmail).First(&admin).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			admin = userDatamodel.User{
				Email:        opts.AdminEmail,
				Name:         "Administrator",
				PasswordHash: opts.AdminPasswordHash,
				IsActive:     true,
			}
			if err := tx.Omit("Roles").Create(&admin).Error; err != nil {
				return fmt.Errorf("create admin user: %w", err)
			}
			lg.Info("seeded admin user", "email", opts.AdminEmail)
		case err != nil:
			return fmt.Errorf("load admin user: %w", err)
		default:
			lg.Info("admin user already exists; ensuring role", "email", opts.AdminEmail)
		}

		grant := userDatamodel.UserRole{UserID: admin.ID, RoleName: "admin"}
		if err := tx.Where(userDatamodel.UserRole{UserID: admin.ID, RoleName: "admin"}).FirstOrCreate(&grant).Error; err != nil {
			return fmt.Errorf("grant admin role: %w", err)
		}
		return nil
	})
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "admin@example.com", "Email of the seeded admin user")
	seedCmd.Flags().StringVar(&adminPassword, "admin-password", "change-me-please", "Password of the seeded admin user when it is created")
}
