package rbac_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/accessctl/internal/core/events"
	"github.com/frahmantamala/accessctl/internal/rbac"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

// cacheContract runs the behaviour every Cache implementation must share.
func cacheContract(newCache func() rbac.Cache) {
	var (
		ctx   context.Context
		cache rbac.Cache
		perms []rbac.Permission
	)

	BeforeEach(func() {
		ctx = context.Background()
		cache = newCache()
		perms = []rbac.Permission{perm("content.read"), perm("content.write")}
	})

	It("should return what was stored under the current epoch", func() {
		epoch, err := cache.Epoch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Set(ctx, epoch, "editor", perms)).To(Succeed())

		got, ok, err := cache.Get(ctx, epoch, "editor")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(perms))
	})

	It("should miss for unknown roles", func() {
		epoch, _ := cache.Epoch(ctx)

		_, ok, err := cache.Get(ctx, epoch, "nobody")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should miss after the role is invalidated", func() {
		epoch, _ := cache.Epoch(ctx)
		Expect(cache.Set(ctx, epoch, "editor", perms)).To(Succeed())

		Expect(cache.Invalidate(ctx, "editor")).To(Succeed())

		next, err := cache.Epoch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(BeNumerically(">", epoch))
		_, ok, err := cache.Get(ctx, next, "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should not resurrect a fill computed before an invalidation", func() {
		// Given a resolution that captured the epoch before the mutation
		stale, _ := cache.Epoch(ctx)
		Expect(cache.Invalidate(ctx, "editor")).To(Succeed())

		// When it writes its result late
		Expect(cache.Set(ctx, stale, "editor", perms)).To(Succeed())

		// Then readers under the new epoch do not see it
		current, _ := cache.Epoch(ctx)
		_, ok, err := cache.Get(ctx, current, "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should drop everything on purge", func() {
		epoch, _ := cache.Epoch(ctx)
		Expect(cache.Set(ctx, epoch, "editor", perms)).To(Succeed())
		Expect(cache.Set(ctx, epoch, "viewer", perms[:1])).To(Succeed())

		Expect(cache.Purge(ctx)).To(Succeed())

		current, _ := cache.Epoch(ctx)
		for _, r := range []string{"editor", "viewer"} {
			_, ok, err := cache.Get(ctx, current, r)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		}
	})
}

var _ = Describe("MemoryCache", func() {
	cacheContract(func() rbac.Cache { return rbac.NewMemoryCache(time.Minute) })

	It("should keep unrelated roles across an invalidation", func() {
		ctx := context.Background()
		cache := rbac.NewMemoryCache(time.Minute)
		epoch, _ := cache.Epoch(ctx)
		Expect(cache.Set(ctx, epoch, "editor", []rbac.Permission{perm("content.write")})).To(Succeed())
		Expect(cache.Set(ctx, epoch, "viewer", []rbac.Permission{perm("content.read")})).To(Succeed())

		Expect(cache.Invalidate(ctx, "editor")).To(Succeed())

		current, _ := cache.Epoch(ctx)
		got, ok, err := cache.Get(ctx, current, "viewer")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(ConsistOf(perm("content.read")))
		Expect(cache.Len()).To(Equal(1))
	})

	It("should expire entries after the ttl", func() {
		ctx := context.Background()
		cache := rbac.NewMemoryCache(10 * time.Millisecond)
		epoch, _ := cache.Epoch(ctx)
		Expect(cache.Set(ctx, epoch, "editor", []rbac.Permission{perm("content.write")})).To(Succeed())

		Eventually(func() bool {
			_, ok, _ := cache.Get(ctx, epoch, "editor")
			return ok
		}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(BeFalse())
	})
})

var _ = Describe("RedisCache", func() {
	var mr *miniredis.Miniredis

	BeforeEach(func() {
		mr = miniredis.RunT(GinkgoT())
	})

	cacheContract(func() rbac.Cache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(client.Close)
		return rbac.NewRedisCache(client, "test:rbac", time.Minute)
	})

	It("should share the epoch between instances", func() {
		ctx := context.Background()
		a := rbac.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shared", time.Minute)
		b := rbac.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shared", time.Minute)

		epoch, err := a.Epoch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Set(ctx, epoch, "editor", []rbac.Permission{perm("content.write")})).To(Succeed())

		_, ok, err := b.Get(ctx, epoch, "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Expect(b.Purge(ctx)).To(Succeed())
		current, err := a.Epoch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).To(Equal(epoch + 1))
	})

	It("should report errors when redis is unreachable", func() {
		ctx := context.Background()
		cache := rbac.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "down", time.Minute)
		mr.Close()

		_, err := cache.Epoch(ctx)

		Expect(err).To(HaveOccurred())
	})

	It("should expire keys after the ttl", func() {
		ctx := context.Background()
		cache := rbac.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "ttl", time.Minute)
		epoch, _ := cache.Epoch(ctx)
		Expect(cache.Set(ctx, epoch, "editor", []rbac.Permission{perm("content.write")})).To(Succeed())

		mr.FastForward(2 * time.Minute)

		_, ok, err := cache.Get(ctx, epoch, "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("RegisterInvalidation", func() {
	var (
		ctx      context.Context
		bus      *events.EventBus
		cache    *rbac.MemoryCache
		source   *fakeSource
		resolver *rbac.Resolver
		u1       rbac.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewEventBus(testLogger())
		cache = rbac.NewMemoryCache(time.Minute)
		source = newFakeSource(role("editor", "content.read", "content.write"))
		resolver = rbac.NewResolver(source, rbac.WithCache(cache))
		rbac.RegisterInvalidation(bus, cache)
		u1 = rbac.User{ID: 1, Roles: []string{"editor"}}
	})

	It("should evict a role when a role.changed event is published", func() {
		// Given a warm cache
		ok, err := resolver.HasPermission(ctx, u1, "content.write")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		// When the role's permissions are replaced and the change is announced
		source.put(role("editor", "content.read"))
		Expect(bus.PublishSync(ctx, events.NewRoleChangedEvent(1, "replace_permissions", "editor"))).To(Succeed())

		// Then the very next check sees the new list
		ok, err = resolver.HasPermission(ctx, u1, "content.write")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should purge the cache when a permission changes", func() {
		_, err := resolver.ResolvePermissions(ctx, u1)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Len()).To(Equal(1))

		Expect(bus.PublishSync(ctx, events.NewPermissionChangedEvent(7, "content.write", "delete"))).To(Succeed())

		Expect(cache.Len()).To(Equal(0))
	})
})
