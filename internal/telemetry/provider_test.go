package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/accessctl/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Provider", func() {
	It("should install nothing when every signal is disabled", func() {
		p, err := NewProvider(context.Background(), internal.ObservabilityConfig{})

		Expect(err).NotTo(HaveOccurred())
		Expect(p.TracerProvider).To(BeNil())
		Expect(p.MeterProvider).To(BeNil())
		Expect(p.Shutdown(context.Background())).To(Succeed())
	})

	It("should build both providers without contacting the collector", func() {
		cfg := internal.ObservabilityConfig{
			Metrics: internal.MetricsConfig{Enabled: true},
			Tracing: internal.TracingConfig{
				Enabled:      true,
				ServiceName:  "accessctl-test",
				SamplingRate: 1,
				CollectorURL: "http://127.0.0.1:1/",
			},
		}

		p, err := NewProvider(context.Background(), cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(p.TracerProvider).NotTo(BeNil())
		Expect(p.MeterProvider).NotTo(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		// Export to the unreachable collector may fail; shutdown must still return.
		_ = p.Shutdown(ctx)
	})

	DescribeTable("collectorEndpoint",
		func(raw, want string) {
			Expect(collectorEndpoint(raw)).To(Equal(want))
		},
		Entry("host and port", "otel:4318", "otel:4318"),
		Entry("http url", "http://otel:4318/", "otel:4318"),
		Entry("https url", "https://collector.example.com", "collector.example.com"),
		Entry("empty", "  ", "localhost:4318"),
	)
})

var _ = Describe("Middleware", func() {
	It("should pass requests through to the wrapped handler", func() {
		h := Middleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		Expect(rec.Code).To(Equal(http.StatusTeapot))
	})
})
