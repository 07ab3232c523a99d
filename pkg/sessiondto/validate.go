package sessiondto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and returns a DomainError with CodeBadRequest on failure.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return DomainError{Code: CodeBadRequest, Message: err.Error()}
	}
	var details strings.Builder
	for _, e := range errs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch e.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", strings.ToLower(e.Field())))
		case "len":
			details.WriteString(fmt.Sprintf("%s must be %s characters", strings.ToLower(e.Field()), e.Param()))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", strings.ToLower(e.Field()), e.Tag()))
		}
	}
	return DomainError{Code: CodeBadRequest, Message: details.String()}
}
