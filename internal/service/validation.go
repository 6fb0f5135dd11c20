package service

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// withDomainValidations returns validate (or a fresh validator) with the custom tags used by request payloads.
func withDomainValidations(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return validate
}
