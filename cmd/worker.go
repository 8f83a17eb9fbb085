package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	rbacPostgres "github.com/frahmantamala/accessctl/internal/rbac/postgres"
	"github.com/frahmantamala/accessctl/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run outside the request path.`,
}

var integrityWorkerCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Report users holding roles that no longer exist",
	Long:  `Periodically scan user_roles for role names without a stored role and log a warning for each. The resolver ignores such names, so they grant nothing.`,
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

		scanner := rbacPostgres.NewRoleSource(db)

		if integrityOnce {
			_, err := scanDanglingRoles(context.Background(), scanner, lg)
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lg.Info("integrity worker started", "interval", integrityInterval)
		runIntegrityWorker(ctx, scanner, integrityInterval, lg)
		lg.Info("integrity worker stopped")
		return nil
	},
}

var (
	integrityInterval time.Duration
	integrityOnce     bool
)

type danglingScanner interface {
	DanglingRoles(ctx context.Context) ([]rbacPostgres.DanglingRole, error)
}

// runIntegrityWorker scans immediately and then every interval until ctx ends.
func runIntegrityWorker(ctx context.Context, scanner danglingScanner, interval time.Duration, lg *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := scanDanglingRoles(ctx, scanner, lg); err != nil {
			lg.Error("integrity scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func scanDanglingRoles(ctx context.Context, scanner danglingScanner, lg *slog.Logger) (int, error) {
	dangling, err := scanner.DanglingRoles(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range dangling {
		lg.Warn("user holds a role that does not exist",
			"user_id", d.UserID,
			"email", d.Email,
			"role", d.RoleName)
	}
	lg.Info("integrity scan finished", "dangling", len(dangling))
	return len(dangling), nil
}

func init() {
	integrityWorkerCmd.Flags().DurationVar(&integrityInterval, "interval", 10*time.Minute, "Time between scans")
	integrityWorkerCmd.Flags().BoolVar(&integrityOnce, "once", false, "Scan once and exit")

	workerCmd.AddCommand(integrityWorkerCmd)
	rootCmd.AddCommand(workerCmd)
}
