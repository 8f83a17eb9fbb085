package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/auth"
	authPostgres "github.com/frahmantamala/accessctl/internal/auth/postgres"
	"github.com/frahmantamala/accessctl/internal/core/events"
	"github.com/frahmantamala/accessctl/internal/permission"
	permissionPostgres "github.com/frahmantamala/accessctl/internal/permission/postgres"
	"github.com/frahmantamala/accessctl/internal/rbac"
	rbacPostgres "github.com/frahmantamala/accessctl/internal/rbac/postgres"
	"github.com/frahmantamala/accessctl/internal/role"
	rolePostgres "github.com/frahmantamala/accessctl/internal/role/postgres"
	"github.com/frahmantamala/accessctl/internal/telemetry"
	"github.com/frahmantamala/accessctl/internal/transport"
	"github.com/frahmantamala/accessctl/internal/transport/middleware"
	"github.com/frahmantamala/accessctl/internal/transport/rest"
	"github.com/frahmantamala/accessctl/internal/user"
	userPostgres "github.com/frahmantamala/accessctl/internal/user/postgres"
	"github.com/frahmantamala/accessctl/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Redis     *redis.Client
	Router    *chi.Mux
	Telemetry *telemetry.Provider
	Logger    *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           telemetry.Middleware("accessctl")(deps.Router),
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.close(ctx)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func (d *Dependencies) close(ctx context.Context) {
	if d.Telemetry != nil {
		if err := d.Telemetry.Shutdown(ctx); err != nil {
			d.Logger.Error("Telemetry shutdown error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	cache, err := buildCache(cfg.RBAC.Cache, deps.Redis)
	if err != nil {
		return err
	}
	if cfg.RBAC.Cache.Driver == "memory" {
		lg.Warn("rbac memory cache invalidates this instance only; use the redis driver when running several instances")
	}

	bus := events.NewEventBus(lg)
	rbac.RegisterInvalidation(bus, cache)

	auditBus := events.NewEventBus(lg)
	events.LogChanges(auditBus, lg)
	events.Forward(bus, auditBus, events.EventTypeRoleChanged, events.EventTypePermissionChanged)

	resolver := rbac.NewResolver(rbacPostgres.NewRoleSource(deps.DB),
		rbac.WithCache(cache),
		rbac.WithLogger(lg))

	hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost)
	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration)

	permissionService := permission.NewService(permissionPostgres.NewPermissionRepository(deps.Gorm), bus, cfg.RBAC.DeletePolicy, lg)
	roleService := role.NewService(rolePostgres.NewRoleRepository(deps.Gorm), bus, cfg.RBAC.DeletePolicy, lg)
	userService := user.NewService(userPostgres.NewUserRepository(deps.Gorm), resolver, hasher, user.Options{
		DefaultRoles:    cfg.RBAC.DefaultRoles,
		BulkConcurrency: cfg.RBAC.BulkConcurrency,
	}, lg)
	authService := auth.NewService(authPostgres.NewRepository(deps.Gorm), tokens, hasher, userService, lg)

	health := rest.NewHealthHandler(deps.DB)
	if deps.Redis != nil {
		health.WithComponent("redis", rest.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}

	handlers := rest.Handlers{
		Health:         health,
		Auth:           auth.NewHandler(transport.NewBaseHandler(lg), authService),
		User:           user.NewHandler(transport.NewBaseHandler(lg), userService),
		Role:           role.NewHandler(transport.NewBaseHandler(lg), roleService),
		Permission:     permission.NewHandler(transport.NewBaseHandler(lg), permissionService),
		Authorization:  auth.NewRBACAuthorization(resolver, lg),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}

	if cfg.Server.OpenAPIPath != "" {
		validator, err := middleware.NewOpenAPIValidator(cfg.Server.OpenAPIPath, rest.APIBasePath)
		if err != nil {
			return fmt.Errorf("openapi validator: %w", err)
		}
		handlers.RequestValidator = validator
	}

	rest.RegisterAllRoutes(deps.Router, handlers, lg)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(config.Observability.Logging)
	lg := logger.LoggerWrapper()

	tp, err := telemetry.NewProvider(context.Background(), config.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var rdb *redis.Client
	if config.RBAC.Cache.Driver == "redis" {
		rdb, err = rbac.NewRedisClient(config.Redis.URL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	return &Dependencies{
		Config:    config,
		DB:        db,
		Gorm:      gdb,
		Redis:     rdb,
		Router:    chi.NewRouter(),
		Telemetry: tp,
		Logger:    lg,
	}, nil
}

// buildCache picks the resolver cache named by rbac.cache.driver. The redis
// driver needs the client opened by initializeDependencies.
func buildCache(cfg internal.CacheConfig, rdb *redis.Client) (rbac.Cache, error) {
	switch cfg.Driver {
	case "", "none":
		return rbac.NoopCache{}, nil
	case "memory":
		return rbac.NewMemoryCache(cfg.TTL), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("rbac cache driver is redis but no redis client is configured")
		}
		return rbac.NewRedisCache(rdb, cfg.Prefix, cfg.TTL), nil
	}
	return nil, fmt.Errorf("unknown rbac cache driver %q", cfg.Driver)
}

// initDB opens the pgx pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
}
