package profiles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is returned when a patch violates a field constraint.
var ErrValidation = errors.New("validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

// patchRules mirrors the constrained fields of a Patch for struct validation.
type patchRules struct {
	Bio      string   `validate:"max=500"`
	Nickname string   `validate:"max=64"`
	Emojis   []string `validate:"dive,max=8"`
}

func validatePatch(p Patch) error {
	var rules patchRules
	if p.Bio.IsSpecified() && !p.Bio.IsNull() {
		rules.Bio = p.Bio.MustGet()
	}
	if p.Nickname.IsSpecified() && !p.Nickname.IsNull() {
		rules.Nickname = p.Nickname.MustGet()
	}
	if p.Emojis.IsSpecified() && !p.Emojis.IsNull() {
		rules.Emojis = p.Emojis.MustGet()
	}
	if err := validate.Struct(rules); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, formatValidationError(err))
	}
	return nil
}

// ValidEmail reports whether addr is a syntactically valid address.
func ValidEmail(addr string) bool {
	return validate.Var(addr, "required,email") == nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "required":
			msgs = append(msgs, field+" is required")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
