package query

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	TypeAccessToken   = "miniapp.query.access_token"
	TypeTokenState    = "miniapp.query.access_token.state"
	TypeSessionSecret = "miniapp.query.session.secret"
)

type AccessTokenMessage struct{}

func (AccessTokenMessage) Type() string { return TypeAccessToken }

func (AccessTokenMessage) Validate() error { return nil }

type TokenStateMessage struct{}

func (TokenStateMessage) Type() string { return TypeTokenState }

func (TokenStateMessage) Validate() error { return nil }

type SessionSecretMessage struct {
	OpenID string `json:"openid"`
}

func (SessionSecretMessage) Type() string { return TypeSessionSecret }

func (m SessionSecretMessage) Validate() error {
	trimmed := SessionSecretMessage{OpenID: strings.TrimSpace(m.OpenID)}
	return invalidFields(validation.ValidateStruct(&trimmed,
		validation.Field(&trimmed.OpenID, validation.Required.Error("openid is required")),
	))
}

// SessionLookup reports whether a session secret is stored for OpenID.
type SessionLookup struct {
	OpenID     string
	SessionKey string
	Found      bool
}
