package validation_test

import (
	"strings"

	errors "github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fieldErrors(appErr *errors.AppError) []errors.ValidationError {
	details, ok := appErr.Details.(errors.ValidationErrors)
	Expect(ok).To(BeTrue())
	return details.Errors
}

var _ = Describe("ValidationBuilder", func() {
	It("should pass when every rule holds", func() {
		v := validation.NewValidator()
		v.Field("email", "jane@example.com").Required().Email()
		v.Field("name", "editor").Required().MaxLength(64).RoleName()

		Expect(v.Validate()).To(BeNil())
	})

	It("should collect one entry per failed rule across fields", func() {
		v := validation.NewValidator()
		v.Field("email", "not-an-email").Required().Email()
		v.Field("password", "short").Required().MinLength(8)
		v.Field("role_id", int64(0)).Required()

		appErr := v.Validate()

		Expect(appErr).NotTo(BeNil())
		Expect(appErr.Code).To(Equal(errors.ErrCodeValidationFailed))
		errs := fieldErrors(appErr)
		Expect(errs).To(HaveLen(3))
		Expect(errs[0].Field).To(Equal("email"))
		Expect(errs[0].Code).To(Equal(string(errors.ErrCodeInvalidEmail)))
		Expect(errs[1].Field).To(Equal("password"))
		Expect(errs[2].Field).To(Equal("role_id"))
	})

	It("should reject addresses with a display name", func() {
		v := validation.NewValidator()
		v.Field("email", "Jane <jane@example.com>").Email()

		Expect(v.Validate()).NotTo(BeNil())
	})

	It("should treat nil and blank string pointers as missing", func() {
		blank := "   "
		v := validation.NewValidator()
		v.Field("a", (*string)(nil)).Required()
		v.Field("b", &blank).Required()

		Expect(fieldErrors(v.Validate())).To(HaveLen(2))
	})

	It("should leave empty optional values to Required", func() {
		v := validation.NewValidator()
		v.Field("description", "").MinLength(3).Email()

		Expect(v.Validate()).To(BeNil())
	})

	It("should run custom rules", func() {
		v := validation.NewValidator()
		v.Field("resource", "users").Custom(func(interface{}) *errors.AppError {
			return errors.NewValidationFieldError("resource", "reserved", errors.ErrCodeInvalidName)
		})

		errs := fieldErrors(v.Validate())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Message).To(Equal("reserved"))
	})
})

var _ = Describe("name validators", func() {
	DescribeTable("ValidatePermissionName",
		func(name string, valid bool) {
			appErr := validation.ValidatePermissionName(name)
			if valid {
				Expect(appErr).To(BeNil())
			} else {
				Expect(appErr).NotTo(BeNil())
			}
		},
		Entry("resource.action", "users.read", true),
		Entry("nested segments", "reports.monthly.export", true),
		Entry("underscores and dashes", "users.assign_roles", true),
		Entry("no dot", "users", false),
		Entry("uppercase", "Users.Read", false),
		Entry("trailing dot", "users.", false),
		Entry("empty", "", false),
		Entry("too long", "a."+strings.Repeat("b", 127), false),
	)

	DescribeTable("ValidateRoleName",
		func(name string, valid bool) {
			appErr := validation.ValidateRoleName(name)
			if valid {
				Expect(appErr).To(BeNil())
			} else {
				Expect(appErr).NotTo(BeNil())
			}
		},
		Entry("simple", "editor", true),
		Entry("with dash", "billing-admin", true),
		Entry("leading dash", "-admin", false),
		Entry("space", "super admin", false),
		Entry("empty", "", false),
		Entry("too long", strings.Repeat("r", 65), false),
	)
})
