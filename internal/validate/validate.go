// Package validate holds the shared go-playground validator, configured to
// report JSON field names with English messages.
package validate

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag   = "notblank"
	entityKindTag = "entitykind"

	entityKindRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query", "path"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(entityKindTag, entityKindValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, entityKindTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

// Struct validates v and returns validator.ValidationErrors on failure.
func Struct(v any) error {
	return validate.Struct(v)
}

// Var validates a single value against a tag expression.
func Var(v any, tag string) error {
	return validate.Var(v, tag)
}

// Message returns the English message for a field error.
func Message(fe validator.FieldError) string {
	return fe.Translate(translator)
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case entityKindTag:
		return fe.Field() + " must start with a letter and contain only lowercase letters, digits and underscores"
	default:
		return fe.Field() + " is invalid"
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func entityKindValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return entityKindRegex.MatchString(str)
	}
	return false
}
