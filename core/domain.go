package core

import (
	"strings"
	"time"
)

const (
	PrimaryBaseURL   = "https://api.weixin.qq.com"
	SecondaryBaseURL = "https://api2.weixin.qq.com"

	TokenPath        = "/cgi-bin/token"
	CodeExchangePath = "/sns/jscode2session"

	DefaultTokenExpiresIn = 7200
	TokenSafetyMargin     = 5000 * time.Millisecond
	DefaultTimeout        = 40000 * time.Millisecond

	AccessTokenParam = "access_token"
	IdentityField    = "openid"
)

type TokenState string

const (
	TokenStateEmpty TokenState = "empty"
	TokenStateValid TokenState = "valid"
	TokenStateStale TokenState = "stale"
)

// AccessToken is the platform-wide credential. It is replaced wholesale on
// renewal and never mutated in place.
type AccessToken struct {
	Token     string
	ExpiresIn int
	FetchedAt time.Time
}

func (t AccessToken) IsZero() bool {
	return strings.TrimSpace(t.Token) == ""
}

// Lifetime is the server-granted lifetime, falling back to the platform default.
func (t AccessToken) Lifetime() time.Duration {
	expiresIn := t.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultTokenExpiresIn
	}
	return time.Duration(expiresIn) * time.Second
}

// Valid reports whether the token can still be used at now. A token is valid
// while now-FetchedAt is within its lifetime minus TokenSafetyMargin.
func (t AccessToken) Valid(now time.Time) bool {
	if t.IsZero() || t.FetchedAt.IsZero() {
		return false
	}
	elapsed := now.Sub(t.FetchedAt).Truncate(time.Millisecond)
	return elapsed <= t.Lifetime()-TokenSafetyMargin
}

func (t AccessToken) State(now time.Time) TokenState {
	switch {
	case t.IsZero():
		return TokenStateEmpty
	case t.Valid(now):
		return TokenStateValid
	default:
		return TokenStateStale
	}
}

// CredentialSnapshot is the persisted state recovered at startup.
type CredentialSnapshot struct {
	Token    AccessToken
	Sessions map[string]string
}

type CodeExchangeResult struct {
	OpenID     string
	SessionKey string
	UnionID    string
	Raw        map[string]any
}

type RequestOptions struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	// Data is JSON encoded when Body is empty.
	Data any
	Body []byte
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	// Data holds the decoded body when it is a JSON object.
	Data map[string]any
}

type FormFieldKind string

const (
	FormFieldPlain FormFieldKind = "plain"
	FormFieldFile  FormFieldKind = "file"
)

type AttachmentOptions struct {
	Filename    string
	ContentType string
}

// FormField is one multipart part: a plain value or a file attachment.
type FormField struct {
	Name       string
	Kind       FormFieldKind
	Value      string
	Content    []byte
	Attachment AttachmentOptions
}

func PlainValue(name string, value string) FormField {
	return FormField{Name: name, Kind: FormFieldPlain, Value: value}
}

func FileAttachment(name string, content []byte, opts AttachmentOptions) FormField {
	return FormField{
		Name:       name,
		Kind:       FormFieldFile,
		Content:    append([]byte(nil), content...),
		Attachment: opts,
	}
}

func (f FormField) IsFile() bool {
	return f.Kind == FormFieldFile
}

type UploadOptions struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Fields  []FormField
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
