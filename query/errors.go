package query

import (
	"errors"
	"net/http"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

func missingReader(kind string) error {
	return goerrors.New("query: "+kind+" reader is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

// invalidFields maps ozzo field errors, keyed by json name, to a go-errors
// validation envelope.
func invalidFields(err error) error {
	var byField validation.Errors
	if !errors.As(err, &byField) || len(byField) == 0 {
		return err
	}
	names := make([]string, 0, len(byField))
	for name := range byField {
		names = append(names, name)
	}
	slices.Sort(names)
	fields := make([]goerrors.FieldError, len(names))
	for i, name := range names {
		fields[i] = goerrors.FieldError{Field: name, Message: byField[name].Error()}
	}
	return goerrors.NewValidation("query: validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
