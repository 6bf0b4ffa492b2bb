// Package validation provides name rules and struct validation for atlas.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/xtxerr/atlas/internal/calendar"
	"github.com/xtxerr/atlas/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// CollectionNameRules returns the rules for collection names. Collection
// names are typed in the shell, so they exclude spaces and dots.
func CollectionNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	return ValidateName(name, CollectionNameRules())
}

// =============================================================================
// Struct Validation
// =============================================================================

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// instance returns the shared validator with the atlas tags registered:
//
//	collname     ValidateCollectionName
//	datetimefmt  a Go layout or strftime pattern accepted by calendar
func instance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("collname", func(fl validator.FieldLevel) bool {
			return ValidateCollectionName(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("datetimefmt", func(fl validator.FieldLevel) bool {
			_, err := calendar.NewParser(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Struct validates s against its `validate` tags. Every violation becomes
// one configuration error naming the yaml path of the field.
func Struct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate")
	}

	verrs := errors.NewValidationErrors()
	for _, fe := range fieldErrs {
		verrs.AddField(fieldPath(fe.Namespace()), describe(fe))
	}
	return verrs.Err()
}

// fieldPath drops the root struct name: "Config.log.level" -> "log.level".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%v is below %s", fe.Value(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%v is above %s", fe.Value(), fe.Param())
	case "gt":
		return fmt.Sprintf("%v must be greater than %s", fe.Value(), fe.Param())
	case "lt":
		return fmt.Sprintf("%v must be less than %s", fe.Value(), fe.Param())
	case "unique":
		return fmt.Sprintf("duplicate %s", strings.ToLower(fe.Param()))
	case "collname":
		return fmt.Sprintf("%q is not a valid collection name", fe.Value())
	case "datetimefmt":
		return fmt.Sprintf("%q is not a valid datetime format", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
