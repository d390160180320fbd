// Package validation owns the request validator shared by gin binding and
// non-HTTP callers, plus the custom tags used by the billing API.
//
// Custom tags:
//
//	money_gt0   decimal.Decimal strictly greater than zero, at most 2 decimal places
//	money_gte0  decimal.Decimal greater than or equal to zero
//	dialable    7 to 15 digits once formatting characters are removed
//	vcode       exactly 6 ASCII digits
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	ginOnce      sync.Once
)

// GetValidator returns the process-wide validator with custom tags registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		mustRegister(validate)
	})
	return validate
}

// RegisterGin installs the custom tags on gin's binding engine so
// ShouldBindJSON honors them through `binding:"..."` struct tags.
func RegisterGin() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			mustRegister(v)
		}
	})
}

func mustRegister(v *validator.Validate) {
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	for tag, fn := range map[string]validator.Func{
		"money_gt0":  moneyGreaterThanZero,
		"money_gte0": moneyNonNegative,
		"dialable":   dialable,
		"vcode":      verificationCode,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %s: %v", tag, err))
		}
	}
}

func decimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	switch d := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return d, true
	case *decimal.Decimal:
		if d == nil {
			return decimal.Decimal{}, false
		}
		return *d, true
	case string:
		parsed, err := decimal.NewFromString(d)
		return parsed, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func moneyGreaterThanZero(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	if !ok {
		return false
	}
	return d.IsPositive() && d.Equal(d.Round(2))
}

func moneyNonNegative(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	return ok && !d.IsNegative()
}

func dialable(fl validator.FieldLevel) bool {
	n := 0
	for _, r := range fl.Field().String() {
		switch {
		case r >= '0' && r <= '9':
			n++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return n >= 7 && n <= 15
}

func verificationCode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateStruct validates s and returns a joined, human-readable error.
func ValidateStruct(s any) error {
	return Translate(GetValidator().Struct(s))
}

// Translate converts validator errors into a single readable error.
// Non-validator errors are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, translateError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"email":      "%s must be a valid email address",
	"e164":       "%s must be an E.164 phone number",
	"money_gt0":  "%s must be a positive amount with at most 2 decimals",
	"money_gte0": "%s must not be negative",
	"dialable":   "%s must be a dialable phone number",
	"vcode":      "%s must be a 6 digit code",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"max":   "%s must be at most %s",
	"min":   "%s must be at least %s",
	"len":   "%s must have length %s",
}

func translateError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if tpl, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, field)
	}
	if tpl, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
