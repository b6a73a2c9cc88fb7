package command

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

// validationEnvelope turns ozzo field errors into a go-errors validation
// envelope with one FieldError per field, sorted by field name.
func validationEnvelope(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "command: validation failed").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadInput)
	}
	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make([]goerrors.FieldError, 0, len(fields))
	for _, field := range fields {
		out = append(out, goerrors.FieldError{Field: snakeCase(field), Message: fieldErrs[field].Error()})
	}
	return goerrors.NewValidation("command: validation failed", out...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func snakeCase(name string) string {
	var b strings.Builder
	for index, r := range name {
		if unicode.IsUpper(r) {
			if index > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
