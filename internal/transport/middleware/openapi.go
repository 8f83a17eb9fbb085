package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/transport"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// OpenAPIValidator rejects requests whose parameters or body do not match
// the API description before they reach a handler. Operations the document
// does not describe pass through untouched.
type OpenAPIValidator struct {
	router   routers.Router
	basePath string
}

// NewOpenAPIValidator loads the document at path. Its paths are relative to
// basePath, e.g. /api/v1.
func NewOpenAPIValidator(path, basePath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return newOpenAPIValidator(doc, basePath)
}

func newOpenAPIValidator(doc *openapi3.T, basePath string) (*OpenAPIValidator, error) {
	// Routing is on the path alone; hosts differ per environment.
	doc.Servers = nil
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &OpenAPIValidator{router: router, basePath: strings.TrimRight(basePath, "/")}, nil
}

func (v *OpenAPIValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probe := r.Clone(r.Context())
		probe.URL.Path = strings.TrimPrefix(r.URL.Path, v.basePath)
		probe.URL.RawPath = ""

		route, params, err := v.router.FindRoute(probe)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		if r.Body != nil && r.Body != http.NoBody {
			body, err = io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				transport.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeInvalidBody))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			probe.Body = io.NopCloser(bytes.NewReader(body))
		}

		err = openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
			Request:    probe,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		})
		if err != nil {
			transport.WriteAppError(w, requestValidationError(err))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestValidationError(err error) *internal.AppError {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		field := "body"
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		}
		msg := reqErr.Reason
		if msg == "" {
			msg = reqErr.Error()
		}
		return internal.NewValidationFieldError(field, msg, internal.ErrCodeValidationFailed)
	}
	return internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
}
