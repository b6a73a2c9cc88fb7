package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

// failure describes one transport error before it becomes an envelope.
type failure struct {
	category goerrors.Category
	status   int
	message  string
	meta     map[string]any
}

func (f failure) err() error {
	return f.wrap(nil)
}

func (f failure) wrap(source error) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(f.message, f.category)
	} else {
		err = goerrors.Wrap(source, f.category, f.message)
	}
	err = err.WithCode(f.status).WithTextCode(textCodeFor(f.category))
	if len(f.meta) > 0 {
		err = err.WithMetadata(f.meta)
	}
	return err
}

func badInput(message string, meta map[string]any) failure {
	return failure{category: goerrors.CategoryBadInput, status: 400, message: message, meta: meta}
}

func upstream(status int, message string, meta map[string]any) failure {
	return failure{category: goerrors.CategoryExternal, status: status, message: message, meta: meta}
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryRateLimit:
		return core.ErrorRateLimited
	case goerrors.CategoryExternal:
		return core.ErrorExternalFailure
	default:
		return core.ErrorInternal
	}
}
