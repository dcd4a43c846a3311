package app

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"crmoverlay/api/internal/color"
)

type inputValidator struct {
	v *validator.Validate
}

func newInputValidator() *inputValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// Anything the normalizer can resolve without a browser, plus CSS
	// variables the host page resolves later.
	_ = v.RegisterValidation("csscolor", func(fl validator.FieldLevel) bool {
		raw := strings.TrimSpace(fl.Field().String())
		if _, ok := color.Parse(raw); ok {
			return true
		}
		return strings.HasPrefix(raw, "var(") && strings.HasSuffix(raw, ")")
	})
	return &inputValidator{v: v}
}

// Validate returns a 422 DomainError listing every failed field.
func (iv *inputValidator) Validate(input any) error {
	err := iv.v.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = friendlyMessage(fe)
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "validation failed", details)
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "csscolor":
		return "must be a CSS color"
	default:
		return "is invalid"
	}
}
