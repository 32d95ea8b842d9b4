package user

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// ValidEmail reports whether email matches the accepted address grammar.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("email_grammar", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput returns one validation error per failing field, in struct
// field order.
func validateInput(v *validator.Validate, in RegisterInput) Errors {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{validationError("body", err.Error())}
	}

	out := make(Errors, 0, len(fieldErrs))
	seen := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		if seen[field] {
			continue
		}
		seen[field] = true
		out = append(out, validationError(field, validationMessage(field, fe.Tag())))
	}
	return out
}

func validationMessage(field, tag string) string {
	switch tag {
	case "required", "notblank":
		return "Please enter a " + strings.ReplaceAll(field, "_", " ")
	case "email_grammar":
		return "Please enter a valid email format"
	default:
		return "Invalid " + strings.ReplaceAll(field, "_", " ")
	}
}
