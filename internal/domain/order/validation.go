// internal/domain/order/validation.go
package order

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
)

var (
	postalCodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9][0-9\s().-]{8,18}[0-9]$`)
	statePattern      = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func addressValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister(v, "postal_code", postalCodePattern)
		mustRegister(v, "phone", phonePattern)
		mustRegister(v, "state_code", statePattern)
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, pattern *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Validate checks the address before it is used for a payment intent or an order.
// The returned error is an *envelope.Error of kind validation listing every bad field.
func (a ShippingAddress) Validate() error {
	err := addressValidator().Struct(a)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return envelope.Validation("Invalid shipping address", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return envelope.Validation("Please correct the highlighted shipping fields", msgs...)
}

// FieldErrors returns the failing fields keyed by their JSON name
func (a ShippingAddress) FieldErrors() map[string]string {
	err := addressValidator().Struct(a)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "postal_code":
		return fe.Field() + " must be a 5-digit ZIP code (optionally ZIP+4)"
	case "phone":
		return fe.Field() + " must be a valid phone number"
	case "state_code":
		return fe.Field() + " must be a 2-letter state code"
	case "len":
		return fe.Field() + " must be " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
