package permission_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/permission"
	permissionPostgres "github.com/frahmantamala/accessctl/internal/permission/postgres"
	"github.com/frahmantamala/accessctl/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Permission Handler Integration", func() {
	var router chi.Router

	BeforeEach(func() {
		db := openTestDB()
		service := permission.NewService(permissionPostgres.NewPermissionRepository(db), &recordingPublisher{}, internal.DeletePolicyReject, testLogger())
		handler := permission.NewHandler(&transport.BaseHandler{Logger: testLogger()}, service)

		router = chi.NewRouter()
		router.Get("/permissions", handler.ListPermissions)
		router.Post("/permissions", handler.CreatePermission)
		router.Get("/permissions/{id}", handler.GetPermission)
		router.Put("/permissions/{id}", handler.UpdatePermission)
		router.Delete("/permissions/{id}", handler.DeletePermission)
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

	It("should create, fetch, list and delete a permission", func() {
		w := do(http.MethodPost, "/permissions", `{"resource":"content","action":"read","description":"Read content"}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		var created permission.Permission
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())
		Expect(created.Name).To(Equal("content.read"))

		w = do(http.MethodGet, "/permissions/1", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodGet, "/permissions", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var list permission.PermissionsResponse
		Expect(json.NewDecoder(w.Body).Decode(&list)).To(Succeed())
		Expect(list.Permissions).To(HaveLen(1))

		w = do(http.MethodDelete, "/permissions/1", "")
		Expect(w.Code).To(Equal(http.StatusNoContent))
	})

	It("should answer 409 on a duplicate name", func() {
		Expect(do(http.MethodPost, "/permissions", `{"resource":"content","action":"read"}`).Code).To(Equal(http.StatusCreated))

		w := do(http.MethodPost, "/permissions", `{"name":"content.read","resource":"content","action":"read"}`)

		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodePermissionExists)))
	})

	It("should answer 400 on malformed input", func() {
		Expect(do(http.MethodPost, "/permissions", `{"resource":`).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPost, "/permissions", `{"resource":"content","action":"read","extra":1}`).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/permissions/abc", "").Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer 404 for unknown ids", func() {
		w := do(http.MethodPut, "/permissions/42", `{"resource":"content","action":"read"}`)

		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(errorCode(w)).To(Equal(string(internal.ErrCodePermissionNotFound)))
	})
})
