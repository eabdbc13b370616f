package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotPointer is returned when SetConfigFromEnvVars receives a non-pointer value.
	ErrNotPointer = errors.New("config target must be a non-nil pointer to a struct")
	// ErrUnsupportedFieldType is returned when an env-tagged field has a kind that cannot be parsed.
	ErrUnsupportedFieldType = errors.New("unsupported config field type")
	// ErrInvalidEnvValue is returned when an environment value cannot be parsed into its field.
	ErrInvalidEnvValue = errors.New("invalid environment value")
)

var durationType = reflect.TypeOf(time.Duration(0))

// GetenvOrDefault returns the trimmed value of key, or defaultValue when it is unset or blank.
func GetenvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	return value
}

// SetConfigFromEnvVars fills every field of s tagged `env:"NAME"` from the
// environment. Unset variables leave the field untouched. Untagged struct
// fields are walked recursively.
func SetConfigFromEnvVars(s any) error {
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrNotPointer
	}

	return setStruct(v.Elem())
}

func setStruct(v reflect.Value) error {
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		target := v.Field(i)

		key, tagged := field.Tag.Lookup("env")
		if !tagged || key == "" || key == "-" {
			if field.Type.Kind() == reflect.Struct && field.Type != durationType {
				if err := setStruct(target); err != nil {
					return err
				}
			}

			continue
		}

		raw := GetenvOrDefault(key, "")
		if raw == "" {
			continue
		}

		if err := setField(target, raw); err != nil {
			return fmt.Errorf("%s (%s): %w", field.Name, key, err)
		}
	}

	return nil
}

func setField(target reflect.Value, raw string) error {
	if target.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvValue, err)
		}

		target.SetInt(int64(d))

		return nil
	}

	switch target.Kind() {
	case reflect.String:
		target.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvValue, err)
		}

		target.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, target.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvValue, err)
		}

		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, target.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvValue, err)
		}

		target.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, target.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEnvValue, err)
		}

		target.SetFloat(f)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, target.Kind())
	}

	return nil
}
