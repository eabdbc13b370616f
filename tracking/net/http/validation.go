package http

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Validation errors. Messages name the offending field by its JSON path.
var (
	ErrValidationFailed       = errors.New("validation failed")
	ErrFieldRequired          = errors.New("field is required")
	ErrFieldMaxLength         = errors.New("field exceeds maximum length")
	ErrFieldMinLength         = errors.New("field below minimum length")
	ErrFieldOutOfRange        = errors.New("field out of range")
	ErrFieldOneOf             = errors.New("field must be one of allowed values")
	ErrFieldURL               = errors.New("field must be a valid URL")
	ErrFieldEventName         = errors.New("field must be a valid event name")
	ErrFieldNonNegativeAmount = errors.New("field must be a non-negative amount")
	ErrBodyParseFailed        = errors.New("failed to parse request body")
	ErrUnsupportedContentType = errors.New("Content-Type must be application/json")
	ErrValidatorInit          = errors.New("validator initialization failed")
)

const maxEventNameLength = 100

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidators() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	vld.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	custom := map[string]validator.Func{
		// Tag and conversion names: printable, no surrounding blanks.
		"event_name": func(fl validator.FieldLevel) bool {
			return validEventName(fl.Field().String())
		},
		// Measurement names start with a letter and hold letters, digits and underscores.
		"measurement_name": func(fl validator.FieldLevel) bool {
			return validMeasurementName(fl.Field().String())
		},
		"nonnegative_amount": func(fl validator.FieldLevel) bool {
			return ValidateAmount(fl.FieldName(), fl.Field().Interface()) == nil
		},
	}

	for tag, fn := range custom {
		if err := vld.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("%w: register %q: %w", ErrValidatorInit, tag, err)
		}
	}

	return vld, nil
}

// GetValidator returns the shared validator and its initialization error.
func GetValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidators()
	})

	return validate, errValidate
}

// ValidateStruct validates payload against its `validate` tags and returns the
// first violation.
func ValidateStruct(payload any) error {
	vld, initErr := GetValidator()
	if initErr != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, initErr)
	}

	if err := vld.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return formatValidationError(validationErrors[0])
		}

		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	return nil
}

func formatValidationError(fe validator.FieldError) error {
	field := fieldPath(fe.Namespace())
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: '%s'", ErrFieldRequired, field)
	case "max":
		return fmt.Errorf("%w: '%s' must be at most %s", ErrFieldMaxLength, field, param)
	case "min":
		return fmt.Errorf("%w: '%s' must be at least %s", ErrFieldMinLength, field, param)
	case "gt", "gte", "lt", "lte":
		return fmt.Errorf("%w: '%s' failed %s=%s", ErrFieldOutOfRange, field, fe.Tag(), param)
	case "oneof":
		return fmt.Errorf("%w: '%s' must be one of [%s]", ErrFieldOneOf, field, param)
	case "url", "http_url":
		return fmt.Errorf("%w: '%s'", ErrFieldURL, field)
	case "event_name", "measurement_name":
		return fmt.Errorf("%w: '%s'", ErrFieldEventName, field)
	case "nonnegative_amount":
		return fmt.Errorf("%w: '%s'", ErrFieldNonNegativeAmount, field)
	default:
		return fmt.Errorf("%w: '%s' failed '%s' check", ErrValidationFailed, field, fe.Tag())
	}
}

// fieldPath drops the root struct name: "MeasurementRequest.events[0].name"
// becomes "events[0].name".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}

	return namespace
}

func validEventName(name string) bool {
	if name == "" || len(name) > maxEventNameLength || strings.TrimSpace(name) != name {
		return false
	}

	return strings.IndexFunc(name, func(r rune) bool { return !unicode.IsPrint(r) }) == -1
}

func validMeasurementName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '_' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}

	return name != ""
}

// ParseBodyAndValidate parses a JSON request body into payload and validates
// it. Bodies declared with another Content-Type are rejected.
func ParseBodyAndValidate(fiberCtx *fiber.Ctx, payload any) error {
	ct := fiberCtx.Get(fiber.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		return ErrUnsupportedContentType
	}

	if err := fiberCtx.BodyParser(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrBodyParseFailed, err)
	}

	return ValidateStruct(payload)
}

// ValidateAmount checks a JSON "value" field: absent is fine, otherwise it must
// be a finite non-negative number or numeric string.
func ValidateAmount(field string, value any) error {
	var (
		amount decimal.Decimal
		err    error
	)

	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: '%s'", ErrFieldNonNegativeAmount, field)
		}

		amount = decimal.NewFromFloat(v)
	case int:
		amount = decimal.NewFromInt(int64(v))
	case int64:
		amount = decimal.NewFromInt(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}

		amount, err = decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		amount = v
	default:
		return fmt.Errorf("%w: '%s'", ErrFieldNonNegativeAmount, field)
	}

	if err != nil || amount.IsNegative() {
		return fmt.Errorf("%w: '%s'", ErrFieldNonNegativeAmount, field)
	}

	return nil
}
