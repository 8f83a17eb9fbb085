package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/datamodel"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"github.com/frahmantamala/accessctl/internal/rbac"
	rbacPostgres "github.com/frahmantamala/accessctl/internal/rbac/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var _ = Describe("loadConfig", func() {
	It("should read and validate config.yml from the given directory", func() {
		dir := GinkgoT().TempDir()
		raw, err := os.ReadFile("../config.yml")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), raw, 0o600)).To(Succeed())

		cfg, err := loadConfig(dir)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.RBAC.DeletePolicy).To(Equal(internal.DeletePolicyReject))
		Expect(cfg.RBAC.DefaultRoles).To(Equal([]string{"viewer"}))
		Expect(cfg.RBAC.Cache.TTL).To(Equal(5 * time.Minute))
		Expect(cfg.Security.AccessTokenDuration).To(Equal(15 * time.Minute))
	})

	It("should reject an invalid config", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), []byte("database:\n  source: \"\"\n"), 0o600)).To(Succeed())

		_, err := loadConfig(dir)

		Expect(err).To(MatchError(ContainSubstring("validating config")))
	})

	It("should fail when no config file exists", func() {
		_, err := loadConfig(GinkgoT().TempDir())

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("buildCache", func() {
	It("should default to no cache", func() {
		c, err := buildCache(internal.CacheConfig{}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(rbac.NoopCache{}))
	})

	It("should build a memory cache", func() {
		c, err := buildCache(internal.CacheConfig{Driver: "memory", TTL: time.Minute}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeAssignableToTypeOf(&rbac.MemoryCache{}))
	})

	It("should build a redis cache over the given client", func() {
		mr := miniredis.RunT(GinkgoT())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)

		c, err := buildCache(internal.CacheConfig{Driver: "redis", Prefix: "t"}, client)

		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeAssignableToTypeOf(&rbac.RedisCache{}))
		Expect(c.Purge(context.Background())).To(Succeed())
	})

	It("should refuse redis without a client and unknown drivers", func() {
		_, err := buildCache(internal.CacheConfig{Driver: "redis"}, nil)
		Expect(err).To(HaveOccurred())

		_, err = buildCache(internal.CacheConfig{Driver: "memcached"}, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("seed", func() {
	var db *gorm.DB

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		DeferCleanup(sqlDB.Close)
		Expect(datamodel.AutoMigrate(db)).To(Succeed())
	})

	opts := seedOptions{AdminEmail: "root@example.com", AdminPasswordHash: "hash"}

	It("should create the roles and an admin holding the admin role", func() {
		Expect(seed(context.Background(), db, opts, testLogger())).To(Succeed())

		var roles []roleDatamodel.Role
		Expect(db.Preload("Permissions").Order("name").Find(&roles).Error).To(Succeed())
		Expect(roles).To(HaveLen(3))
		Expect(roles[0].Name).To(Equal("admin"))
		Expect(roles[0].IsSystem).To(BeTrue())
		Expect(roles[1].Name).To(Equal("editor"))
		Expect(roles[1].Permissions).To(HaveLen(2))

		var grants []userDatamodel.UserRole
		Expect(db.Find(&grants).Error).To(Succeed())
		Expect(grants).To(HaveLen(1))
		Expect(grants[0].RoleName).To(Equal("admin"))
	})

	It("should be idempotent", func() {
		Expect(seed(context.Background(), db, opts, testLogger())).To(Succeed())
		Expect(seed(context.Background(), db, opts, testLogger())).To(Succeed())

		var users, roles, links int64
		Expect(db.Model(&userDatamodel.User{}).Count(&users).Error).To(Succeed())
		Expect(db.Model(&roleDatamodel.Role{}).Count(&roles).Error).To(Succeed())
		Expect(db.Model(&roleDatamodel.RolePermission{}).Count(&links).Error).To(Succeed())
		Expect(users).To(Equal(int64(1)))
		Expect(roles).To(Equal(int64(3)))
		Expect(links).To(Equal(int64(len(seedRoles()[0].Permissions) + 3)))
	})

	It("should require an admin email", func() {
		Expect(seed(context.Background(), db, seedOptions{}, testLogger())).NotTo(Succeed())
	})
})

type fakeScanner struct {
	mu    sync.Mutex
	rows  []rbacPostgres.DanglingRole
	err   error
	calls int
}

func (f *fakeScanner) DanglingRoles(context.Context) ([]rbacPostgres.DanglingRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rows, f.err
}

func (f *fakeScanner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ = Describe("integrity worker", func() {
	It("should count dangling role references", func() {
		scanner := &fakeScanner{rows: []rbacPostgres.DanglingRole{
			{UserID: 1, Email: "a@example.com", RoleName: "ghost"},
			{UserID: 2, Email: "b@example.com", RoleName: "phantom"},
		}}

		n, err := scanDanglingRoles(context.Background(), scanner, testLogger())

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	It("should surface scan errors", func() {
		_, err := scanDanglingRoles(context.Background(), &fakeScanner{err: errors.New("db down")}, testLogger())

		Expect(err).To(MatchError("db down"))
	})

	It("should keep scanning until the context ends", func() {
		scanner := &fakeScanner{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		go func() {
			defer close(done)
			runIntegrityWorker(ctx, scanner, 5*time.Millisecond, testLogger())
		}()

		Eventually(func() int { return scanner.callCount() }).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
