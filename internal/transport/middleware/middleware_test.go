package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body
}

var _ = Describe("RecoveryMiddleware", func() {
	It("should turn a panic into a 500 error envelope", func() {
		h := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})

	It("should re-panic http.ErrAbortHandler", func() {
		h := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		Expect(func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}).To(PanicWith(http.ErrAbortHandler))
	})
})

var _ = Describe("RequestID", func() {
	var seen string

	handler := func() http.Handler {
		return RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = w.Header().Get(TraceIDHeader)
		}))
	}

	It("should reuse an incoming trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceIDHeader, "abc-123")
		rec := httptest.NewRecorder()

		handler().ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceIDHeader)).To(Equal("abc-123"))
		Expect(seen).To(Equal("abc-123"))
	})

	It("should mint a trace id when none is present", func() {
		rec := httptest.NewRecorder()

		handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Header().Get(TraceIDHeader)).To(HaveLen(36))
	})
})

var _ = Describe("CORS", func() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	It("should echo an allowed origin", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()

		CORS("https://admin.example.com, https://other.example.com")(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.example.com"))
		Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
	})

	It("should not allow an unlisted origin", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		CORS("https://admin.example.com")(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("should answer preflight requests", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/roles", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rec := httptest.NewRecorder()

		CORS("")(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring(http.MethodPut))
	})
})

var _ = Describe("RequestLogging", func() {
	It("should leave the body readable for the handler", func() {
		var got string
		h := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			got = string(b)
			w.WriteHeader(http.StatusCreated)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"editor"}`)))

		Expect(got).To(Equal(`{"name":"editor"}`))
		Expect(rec.Code).To(Equal(http.StatusCreated))
	})

	It("should filter sensitive fields at any depth", func() {
		out := redactBody([]byte(`{"email":"a@b.c","password":"hunter2","nested":{"refresh_token":"x"},"items":[{"api_key":"k"}]}`))

		Expect(out).NotTo(ContainSubstring("hunter2"))
		Expect(out).NotTo(ContainSubstring(`"x"`))
		Expect(out).NotTo(ContainSubstring(`"k"`))
		Expect(out).To(ContainSubstring("a@b.c"))
	})

	It("should filter sensitive headers", func() {
		h := http.Header{}
		h.Set("Authorization", "Bearer secret")
		h.Set("Accept", "application/json")

		out := redactHeaders(h)

		Expect(out["Authorization"]).To(Equal("[FILTERED]"))
		Expect(out["Accept"]).To(Equal("application/json"))
	})

	It("should not log oversized or non-json bodies", func() {
		Expect(redactBody([]byte(strings.Repeat("a", maxLoggedBody+1)))).To(Equal("[TRUNCATED]"))
		Expect(redactBody([]byte("plain"))).To(Equal("[NON-JSON BODY]"))
	})
})
