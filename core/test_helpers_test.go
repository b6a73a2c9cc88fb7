package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type routeHandler func(req TransportRequest) (TransportResponse, error)

type scriptedTransport struct {
	mu       sync.Mutex
	routes   map[string]routeHandler
	requests []TransportRequest
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{routes: map[string]routeHandler{}}
}

func (t *scriptedTransport) Handle(path string, handler routeHandler) *scriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[path] = handler
	return t
}

func (*scriptedTransport) Kind() string {
	return "scripted"
}

func (t *scriptedTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	path := strings.TrimPrefix(req.URL, PrimaryBaseURL)
	handler := t.routes[path]
	t.mu.Unlock()
	if handler == nil {
		return TransportResponse{}, errors.New("scripted transport: no route for " + path)
	}
	return handler(req)
}

func (t *scriptedTransport) Requests() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TransportRequest(nil), t.requests...)
}

func (t *scriptedTransport) Count(path string) int {
	count := 0
	for _, req := range t.Requests() {
		if strings.TrimPrefix(req.URL, PrimaryBaseURL) == path {
			count++
		}
	}
	return count
}

func jsonResponse(status int, body map[string]any) TransportResponse {
	encoded, _ := json.Marshal(body)
	return TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       encoded,
	}
}

func respondJSON(status int, body map[string]any) routeHandler {
	return func(TransportRequest) (TransportResponse, error) {
		return jsonResponse(status, body), nil
	}
}

func tokenRoute(token string, expiresIn int) routeHandler {
	return respondJSON(200, map[string]any{"access_token": token, "expires_in": expiresIn})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingPersistence struct {
	loadErr error
	saveErr error
}

func (p failingPersistence) Load(context.Context, string) ([]byte, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return nil, ErrBlobNotFound
}

func (p failingPersistence) Save(context.Context, string, []byte) error {
	return p.saveErr
}

type recordingSink struct {
	mu       sync.Mutex
	failures map[string][]error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failures: map[string][]error{}}
}

func (s *recordingSink) ReportPersistFailure(_ context.Context, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], err)
}

func (s *recordingSink) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures[key])
}

func testConfig() Config {
	return Config{
		AppID:     "wx-app",
		AppSecret: "app-secret",
		OfferID:   "offer-1",
		PaySecret: "pay-secret",
	}
}

func newTestClient(t *testing.T, transport TransportAdapter, persistence Persistence, clock *fakeClock, opts ...Option) *Client {
	t.Helper()
	if persistence == nil {
		persistence = NewMemoryPersistence()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	base := []Option{
		WithTransport(transport),
		WithPersistence(persistence),
		WithPersistWriter(SyncPersistWriter{Persistence: persistence}),
		WithClock(clock.Now),
	}
	client, err := NewClient(context.Background(), testConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
