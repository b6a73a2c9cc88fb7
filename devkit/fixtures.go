package devkit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/goliatone/go-miniapp/core"
)

// JSONScript serves body encoded as JSON with the given status.
func JSONScript(status int, body any) TransportScript {
	payload, err := json.Marshal(body)
	if err != nil {
		return TransportScript{Err: err}
	}
	return TransportScript{Response: core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       payload,
	}}
}

func TokenScript(token string, expiresIn int) TransportScript {
	return JSONScript(200, map[string]any{"access_token": token, "expires_in": expiresIn})
}

func SessionScript(openID string, sessionKey string) TransportScript {
	return JSONScript(200, map[string]any{"openid": openID, "session_key": sessionKey})
}

// PlatformErrorScript serves an HTTP 200 body carrying a non-zero errcode.
func PlatformErrorScript(errcode int, errmsg string) TransportScript {
	return JSONScript(200, map[string]any{"errcode": errcode, "errmsg": errmsg})
}

func ErrorScript(err error) TransportScript {
	return TransportScript{Err: err}
}

// MemoryPersistence is a persistence fixture that can be told to fail.
type MemoryPersistence struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saves   map[string]int
	LoadErr error
	SaveErr error
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{blobs: map[string][]byte{}, saves: map[string]int{}}
}

func (p *MemoryPersistence) Load(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	blob, ok := p.blobs[key]
	if !ok {
		return nil, core.ErrBlobNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (p *MemoryPersistence) Save(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SaveErr != nil {
		return p.SaveErr
	}
	p.blobs[key] = append([]byte(nil), payload...)
	p.saves[key]++
	return nil
}

func (p *MemoryPersistence) Saves(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves[key]
}

// Put seeds a blob without counting it as a save.
func (p *MemoryPersistence) Put(key string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[key] = append([]byte(nil), payload...)
}

// RecordingSink collects persistence failures by key.
type RecordingSink struct {
	mu       sync.Mutex
	failures map[string][]error
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{failures: map[string][]error{}}
}

func (s *RecordingSink) ReportPersistFailure(_ context.Context, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], err)
}

func (s *RecordingSink) Failures(key string) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failures[key]...)
}

var errFixtureUnavailable = errors.New("devkit: fixture unavailable")

// UnavailablePersistence fails every call.
type UnavailablePersistence struct{}

func (UnavailablePersistence) Load(context.Context, string) ([]byte, error) {
	return nil, errFixtureUnavailable
}

func (UnavailablePersistence) Save(context.Context, string, []byte) error {
	return errFixtureUnavailable
}

var (
	_ core.Persistence    = (*MemoryPersistence)(nil)
	_ core.Persistence    = UnavailablePersistence{}
	_ core.DiagnosticSink = (*RecordingSink)(nil)
)
