package core

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
	// custom validation tags & texts
	actionRefTag   = "actionref"
	actionRefText  = "{0} must be an identifier made of letters, digits, underscores and dots"
	actionRefRegex = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)

	viewModeTag  = "viewmode"
	viewModeText = "{0} must be a comma-separated list of list, tree, form, kanban, graph, pivot or calendar"
	viewModes    = map[string]bool{
		"list": true, "tree": true, "form": true, "kanban": true, "graph": true, "pivot": true, "calendar": true,
	}

	hexColorTag  = "hexcolor"
	hexColorText = "{0} must be a hex color such as #3498db"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewValidator returns a validator with the English translations and the custom tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(actionRefTag, actionRefValidation)
	RegisterCustomTranslation(validate, translator, actionRefTag, actionRefText)

	_ = validate.RegisterValidation(viewModeTag, viewModeValidation)
	RegisterCustomTranslation(validate, translator, viewModeTag, viewModeText)

	RegisterCustomTranslation(validate, translator, hexColorTag, hexColorText, true)
	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// actionRefValidation only allows registry-style keys, e.g. "action_open_fees_main".
func actionRefValidation(fl validator.FieldLevel) bool {
	return actionRefRegex.MatchString(fl.Field().String())
}

// viewModeValidation allows a comma-separated list of known view modes.
func viewModeValidation(fl validator.FieldLevel) bool {
	modes := SplitList(fl.Field().String())
	if len(modes) == 0 {
		return false
	}
	for _, m := range modes {
		if !viewModes[m] {
			return false
		}
	}
	return true
}
