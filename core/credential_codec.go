package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "miniapp_credentials_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec converts the cached credentials to and from persisted blobs.
type CredentialCodec interface {
	Format() string
	Version() int
	EncodeToken(token AccessToken) ([]byte, error)
	DecodeToken(payload []byte) (AccessToken, error)
	EncodeSessions(sessions map[string]string) ([]byte, error)
	DecodeSessions(payload []byte) (map[string]string, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonTokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	// FetchedAt is Unix milliseconds.
	FetchedAt int64 `json:"fetched_at"`
}

func (JSONCredentialCodec) EncodeToken(token AccessToken) ([]byte, error) {
	payload := jsonTokenPayload{
		AccessToken: strings.TrimSpace(token.Token),
		ExpiresIn:   token.ExpiresIn,
	}
	if !token.FetchedAt.IsZero() {
		payload.FetchedAt = token.FetchedAt.UnixMilli()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode token payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) DecodeToken(payload []byte) (AccessToken, error) {
	if len(payload) == 0 {
		return AccessToken{}, fmt.Errorf("core: token payload is empty")
	}
	decoded := jsonTokenPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return AccessToken{}, fmt.Errorf("core: decode token payload: %w", err)
	}
	token := AccessToken{
		Token:     strings.TrimSpace(decoded.AccessToken),
		ExpiresIn: decoded.ExpiresIn,
	}
	if decoded.FetchedAt > 0 {
		token.FetchedAt = time.UnixMilli(decoded.FetchedAt).UTC()
	}
	return token, nil
}

func (JSONCredentialCodec) EncodeSessions(sessions map[string]string) ([]byte, error) {
	if sessions == nil {
		sessions = map[string]string{}
	}
	encoded, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("core: encode sessions payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) DecodeSessions(payload []byte) (map[string]string, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("core: sessions payload is empty")
	}
	decoded := map[string]string{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("core: decode sessions payload: %w", err)
	}
	return decoded, nil
}
