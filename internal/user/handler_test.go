package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/rbac"
	rbacPostgres "github.com/frahmantamala/accessctl/internal/rbac/postgres"
	"github.com/frahmantamala/accessctl/internal/transport"
	"github.com/frahmantamala/accessctl/internal/user"
	userPostgres "github.com/frahmantamala/accessctl/internal/user/postgres"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("User Handler Integration", func() {
	var (
		router chi.Router
		actor  *internal.Principal
	)

	BeforeEach(func() {
		db := openTestDB()
		seedRoles(db)
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		resolver := rbac.NewResolver(rbacPostgres.NewRoleSource(sqlx.NewDb(sqlDB, "sqlite3")))
		service := user.NewService(userPostgres.NewUserRepository(db), resolver, plainHasher{}, user.Options{}, testLogger())
		handler := user.NewHandler(&transport.BaseHandler{Logger: testLogger()}, service)

		admin, err := service.Create(context.Background(), nil, user.CreateUserDTO{Email: "admin@example.com", Name: "Admin", Password: "password123", Roles: []string{"admin"}})
		Expect(err).NotTo(HaveOccurred())
		actor = &internal.Principal{ID: admin.ID, Email: admin.Email, IsActive: true, Roles: admin.Roles}

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if actor != nil {
					r = r.WithContext(internal.ContextWithPrincipal(r.Context(), actor))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.Get("/users/me", handler.GetCurrentUser)
		router.Get("/users/me/permissions", handler.GetCurrentUserPermissions)
		router.Get("/users", handler.ListUsers)
		router.Post("/users", handler.CreateUser)
		router.Post("/users/roles/bulk", handler.BulkReplaceRoles)
		router.Get("/users/{id}", handler.GetUser)
		router.Put("/users/{id}", handler.UpdateUser)
		router.Delete("/users/{id}", handler.DeleteUser)
		router.Put("/users/{id}/roles", handler.ReplaceRoles)
		router.Get("/users/{id}/permissions", handler.GetUserPermissions)
		router.Get("/users/{id}/permissions/{permission}", handler.CheckUserPermission)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	errorCode := func(w *httptest.ResponseRecorder) string {
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		return body.Error.Code
	}

	It("should describe the caller", func() {
		w := do(http.MethodGet, "/users/me", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var me user.User
		Expect(json.NewDecoder(w.Body).Decode(&me)).To(Succeed())
		Expect(me.Roles).To(Equal([]string{"admin"}))

		w = do(http.MethodGet, "/users/me/permissions", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var perms user.PermissionsResponse
		Expect(json.NewDecoder(w.Body).Decode(&perms)).To(Succeed())
		Expect(perms.Permissions).To(HaveLen(3))
	})

	It("should answer 401 without a principal", func() {
		actor = nil

		Expect(do(http.MethodGet, "/users/me", "").Code).To(Equal(http.StatusUnauthorized))
	})

	It("should create a user and replace its roles", func() {
		w := do(http.MethodPost, "/users", `{"email":"u1@example.com","name":"U1","password":"password123","roles":["viewer"]}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		var created user.User
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())

		w = do(http.MethodPut, "/users/2/roles", `{"roles":["editor"]}`)
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodGet, "/users/2/permissions/content.write", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var check user.PermissionCheckResponse
		Expect(json.NewDecoder(w.Body).Decode(&check)).To(Succeed())
		Expect(check.Allowed).To(BeTrue())
	})

	It("should answer 403 on self-promotion", func() {
		w := do(http.MethodPut, "/users/1/roles", `{"roles":["admin","editor"]}`)

		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodeSelfPromotion)))
	})

	It("should answer 404 on an unknown role", func() {
		Expect(do(http.MethodPost, "/users", `{"email":"u1@example.com","name":"U1","password":"password123"}`).Code).To(Equal(http.StatusCreated))

		w := do(http.MethodPut, "/users/2/roles", `{"roles":["ghost"]}`)

		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodeRoleNotFound)))
	})

	It("should answer 207 when a bulk assignment partly fails", func() {
		Expect(do(http.MethodPost, "/users", `{"email":"u1@example.com","name":"U1","password":"password123"}`).Code).To(Equal(http.StatusCreated))

		w := do(http.MethodPost, "/users/roles/bulk", `{"items":[{"user_id":2,"roles":["viewer"]},{"user_id":42,"roles":["viewer"]}]}`)

		Expect(w.Code).To(Equal(http.StatusMultiStatus))
		var resp user.BulkReplaceRolesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.PartialFailure).To(BeTrue())
		Expect(resp.Results[0].Status).To(Equal(user.BulkStatusOK))
		Expect(resp.Results[1].Status).To(Equal(user.BulkStatusError))
	})

	It("should answer 409 on a duplicate email", func() {
		w := do(http.MethodPost, "/users", `{"email":"admin@example.com","name":"Dup","password":"password123"}`)

		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodeEmailExists)))
	})

	It("should update and delete a user", func() {
		Expect(do(http.MethodPost, "/users", `{"email":"u1@example.com","name":"U1","password":"password123"}`).Code).To(Equal(http.StatusCreated))

		Expect(do(http.MethodPut, "/users/2", `{"name":"Renamed","is_active":false}`).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodDelete, "/users/2", "").Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodGet, "/users/2", "").Code).To(Equal(http.StatusNotFound))
	})
})
