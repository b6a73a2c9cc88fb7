package command

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-miniapp/core"
)

const (
	TypeExchangeCode = "miniapp.command.session.exchange_code"
	TypeRequest      = "miniapp.command.platform.request"
	TypeUpload       = "miniapp.command.platform.upload"
	TypePayRequest   = "miniapp.command.payment.request"
)

var notBlank = validation.By(func(value any) error {
	if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
})

type ExchangeCodeMessage struct {
	Code string
}

func (ExchangeCodeMessage) Type() string { return TypeExchangeCode }

func (m ExchangeCodeMessage) Validate() error {
	return validationEnvelope(validation.ValidateStruct(&m,
		validation.Field(&m.Code, validation.Required, notBlank),
	))
}

type RequestMessage struct {
	Options core.RequestOptions
}

func (RequestMessage) Type() string { return TypeRequest }

func (m RequestMessage) Validate() error {
	opts := m.Options
	return validationEnvelope(validation.ValidateStruct(&opts,
		validation.Field(&opts.Path, validation.Required, notBlank),
		validation.Field(&opts.Method, validation.By(validateMethod)),
	))
}

type UploadMessage struct {
	Options core.UploadOptions
}

func (UploadMessage) Type() string { return TypeUpload }

func (m UploadMessage) Validate() error {
	opts := m.Options
	return validationEnvelope(validation.ValidateStruct(&opts,
		validation.Field(&opts.Path, validation.Required, notBlank),
		validation.Field(&opts.Fields, validation.Required, validation.Each(validation.By(validateFormField))),
	))
}

func validateMethod(value any) error {
	method, _ := value.(string)
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "", "GET", "POST", "PUT", "PATCH", "DELETE":
		return nil
	default:
		return validation.NewError("validation_method", "unsupported http method")
	}
}

func validateFormField(value any) error {
	field, ok := value.(core.FormField)
	if !ok {
		return nil
	}
	if strings.TrimSpace(field.Name) == "" {
		return validation.NewError("validation_field_name", "field name is required")
	}
	return nil
}

type PayRequestMessage struct {
	Path    string
	Payload map[string]any
}

func (PayRequestMessage) Type() string { return TypePayRequest }

func (m PayRequestMessage) Validate() error {
	return validationEnvelope(validation.ValidateStruct(&m,
		validation.Field(&m.Path, validation.Required, notBlank),
		validation.Field(&m.Payload, validation.Required, validation.By(requireIdentity)),
	))
}

func requireIdentity(value any) error {
	payload, _ := value.(map[string]any)
	identity, _ := payload[core.IdentityField].(string)
	if strings.TrimSpace(identity) == "" {
		return validation.NewError("validation_identity", "openid is required")
	}
	return nil
}
