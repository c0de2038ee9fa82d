package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
	Value any    `json:"value,omitempty"`
}

// Message renders the failure as a short human readable sentence.
func (v ValidationError) Message() string {
	field := prettifyFieldName(v.Field)
	switch v.Tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if isCollection(v.Value) {
			return fmt.Sprintf("%s must contain at least %s entries", field, v.Param)
		}
		return fmt.Sprintf("%s must be at least %s", field, v.Param)
	case "max":
		if isCollection(v.Value) {
			return fmt.Sprintf("%s must contain at most %s entries", field, v.Param)
		}
		return fmt.Sprintf("%s must be at most %s", field, v.Param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, v.Param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, v.Param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, v.Param)
	case "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", field)
	default:
		if v.Param != "" {
			return fmt.Sprintf("%s failed validation: %s=%s", field, v.Tag, v.Param)
		}
		return fmt.Sprintf("%s failed validation: %s", field, v.Tag)
	}
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a struct using registered rules.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fieldPath(fe),
				Tag:   fe.Tag(),
				Param: fe.Param(),
				Value: fe.Value(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

// fieldPath drops the top-level struct name so nested fields read like JSON paths.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}

func isCollection(value any) bool {
	if value == nil {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			comma := strings.Index(name, ",")
			if comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}
