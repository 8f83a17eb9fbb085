package permission_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/accessctl/internal"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	"github.com/frahmantamala/accessctl/internal/core/events"
	"github.com/frahmantamala/accessctl/internal/permission"
	permissionPostgres "github.com/frahmantamala/accessctl/internal/permission/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Permission Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		publisher *recordingPublisher
		service   *permission.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		publisher = &recordingPublisher{}
		service = permission.NewService(permissionPostgres.NewPermissionRepository(db), publisher, internal.DeletePolicyReject, testLogger())
	})

	grant := func(roleName string, permID int64) {
		r := &roleDatamodel.Role{Name: roleName}
		Expect(db.Create(r).Error).To(Succeed())
		Expect(db.Create(&roleDatamodel.RolePermission{RoleID: r.ID, PermissionID: permID}).Error).To(Succeed())
	}

	Describe("Create", func() {
		It("should derive the name from resource and action when omitted", func() {
			// Given
			dto := permission.PermissionDTO{Resource: "content", Action: "publish"}

			// When
			p, err := service.Create(ctx, dto)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name).To(Equal("content.publish"))
			Expect(p.ID).To(BeNumerically(">", 0))
		})

		It("should keep an explicit name", func() {
			p, err := service.Create(ctx, permission.PermissionDTO{Name: "content.publish_all", Resource: "content", Action: "publish"})

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name).To(Equal("content.publish_all"))
		})

		It("should reject a duplicate name with a conflict", func() {
			_, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})

			Expect(errors.Is(err, internal.ErrPermissionExists)).To(BeTrue())
		})

		It("should report every invalid field", func() {
			_, err := service.Create(ctx, permission.PermissionDTO{Name: "NotDotted", Action: "Read"})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
			details, ok := appErr.Details.(internal.ValidationErrors)
			Expect(ok).To(BeTrue())
			fields := []string{}
			for _, e := range details.Errors {
				fields = append(fields, e.Field)
			}
			Expect(fields).To(ContainElements("resource", "action", "name"))
		})

		It("should not announce a create", func() {
			_, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})

			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.types()).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		It("should rename and announce the change", func() {
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.Update(ctx, p.ID, permission.PermissionDTO{Resource: "content", Action: "view"})

			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("content.view"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePermissionChanged}))
		})

		It("should refuse a rename onto another permission", func() {
			_, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "write"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Update(ctx, p.ID, permission.PermissionDTO{Resource: "content", Action: "read"})

			Expect(errors.Is(err, internal.ErrPermissionExists)).To(BeTrue())
		})

		It("should return not found for an unknown id", func() {
			_, err := service.Update(ctx, 404, permission.PermissionDTO{Resource: "content", Action: "read"})

			Expect(errors.Is(err, internal.ErrPermissionNotFound)).To(BeTrue())
		})

		It("should fail closed when invalidation fails", func() {
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())
			publisher.err = errors.New("redis down")

			_, err = service.Update(ctx, p.ID, permission.PermissionDTO{Resource: "content", Action: "view"})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(500))
		})
	})

	Describe("Delete", func() {
		It("should reject deleting a granted permission under the reject policy", func() {
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())
			grant("viewer", p.ID)

			err = service.Delete(ctx, p.ID)

			Expect(errors.Is(err, internal.ErrPermissionInUse)).To(BeTrue())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("should remove grants under the cascade policy", func() {
			service = permission.NewService(permissionPostgres.NewPermissionRepository(db), publisher, internal.DeletePolicyCascade, testLogger())
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())
			grant("viewer", p.ID)

			Expect(service.Delete(ctx, p.ID)).To(Succeed())

			_, err = service.Get(ctx, p.ID)
			Expect(errors.Is(err, internal.ErrPermissionNotFound)).To(BeTrue())
			Expect(publisher.types()).To(Equal([]string{events.EventTypePermissionChanged}))
		})

		It("should delete an unreferenced permission", func() {
			p, err := service.Create(ctx, permission.PermissionDTO{Resource: "content", Action: "read"})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, p.ID)).To(Succeed())

			all, err := service.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})
})
