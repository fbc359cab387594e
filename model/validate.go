package model

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var indexIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]{2,254}$`)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("index_id", validateIndexID)
	validate.RegisterStructValidation(validateTimeRange, TimeRange{})
}

// ValidIndexID reports whether id is a well-formed index id: a letter followed
// by 2 to 254 letters, digits, dots, underscores or hyphens.
func ValidIndexID(id string) bool {
	return indexIDPattern.MatchString(id)
}

func validateIndexID(fl validator.FieldLevel) bool {
	return ValidIndexID(fl.Field().String())
}

func validateTimeRange(sl validator.StructLevel) {
	tr := sl.Current().Interface().(TimeRange)
	if tr.Start > tr.End {
		sl.ReportError(tr.End, "End", "end", "gtefield", "Start")
	}
}

// Validate checks the struct tags of v (IndexMetadata, SplitMetadata, ...).
func Validate(v any) error {
	return validate.Struct(v)
}
