package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/accessctl/internal/rbac"
	"github.com/frahmantamala/accessctl/pkg/logger"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Resolver cache management commands",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached role permission set",
	Long:  `Advance the shared cache epoch so every server instance resolves from the database on its next check. Only the redis driver is shared between processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		setupLogger(cfg.Observability.Logging)
		lg := logger.LoggerWrapper()

		if cfg.RBAC.Cache.Driver != "redis" {
			lg.Info("nothing to purge: cache driver is process local", "driver", cfg.RBAC.Cache.Driver)
			return nil
		}

		client, err := rbac.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cache := rbac.NewRedisCache(client, cfg.RBAC.Cache.Prefix, cfg.RBAC.Cache.TTL)
		if err := cache.Purge(ctx); err != nil {
			return fmt.Errorf("purge rbac cache: %w", err)
		}
		epoch, err := cache.Epoch(ctx)
		if err != nil {
			return fmt.Errorf("read rbac cache epoch: %w", err)
		}

		lg.Info("rbac cache purged", "epoch", epoch)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
