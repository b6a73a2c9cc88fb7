package devkit

import (
	"context"
	"errors"
	"maps"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-miniapp/core"
)

// TransportScript is one canned answer: a response, an error, or both.
type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// playlist serves its scripts in order and keeps repeating the last one.
type playlist struct {
	scripts []TransportScript
	cursor  int
}

func newPlaylist(scripts []TransportScript) *playlist {
	return &playlist{scripts: append([]TransportScript(nil), scripts...)}
}

func (p *playlist) empty() bool {
	return p == nil || len(p.scripts) == 0
}

func (p *playlist) play() (core.TransportResponse, error) {
	script := p.scripts[min(p.cursor, len(p.scripts)-1)]
	p.cursor++
	return copyResponse(script.Response), script.Err
}

// FakeTransportAdapter stands in for the platform in tests. Calls whose URL
// path has a Route get that route's playlist; other calls get the default
// playlist, or an empty JSON object when there is none.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	kind     string
	fallback *playlist
	routes   map[string]*playlist
	captured []core.TransportRequest
}

func NewFakeTransportAdapter(kind string, scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:     strings.ToLower(strings.TrimSpace(kind)),
		fallback: newPlaylist(scripts),
		routes:   make(map[string]*playlist),
	}
}

func (a *FakeTransportAdapter) Route(path string, scripts ...TransportScript) *FakeTransportAdapter {
	a.mu.Lock()
	a.routes[cleanPath(path)] = newPlaylist(scripts)
	a.mu.Unlock()
	return a
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, errors.New("devkit: fake transport adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.captured = append(a.captured, copyRequest(req))
	if routed := a.routes[pathOf(req.URL)]; !routed.empty() {
		return routed.play()
	}
	if !a.fallback.empty() {
		return a.fallback.play()
	}
	return core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{},
		Body:       []byte(`{}`),
		Metadata:   map[string]any{"kind": a.kind},
	}, nil
}

// Requests returns copies of every captured request in call order.
func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.TransportRequest, len(a.captured))
	for i, req := range a.captured {
		out[i] = copyRequest(req)
	}
	return out
}

func (a *FakeTransportAdapter) RequestsTo(path string) []core.TransportRequest {
	want := cleanPath(path)
	var out []core.TransportRequest
	for _, req := range a.Requests() {
		if pathOf(req.URL) == want {
			out = append(out, req)
		}
	}
	return out
}

func pathOf(raw string) string {
	if parsed, err := url.Parse(raw); err == nil {
		return cleanPath(parsed.Path)
	}
	return cleanPath(raw)
}

func cleanPath(path string) string {
	return "/" + strings.TrimPrefix(strings.TrimSpace(path), "/")
}

func copyRequest(in core.TransportRequest) core.TransportRequest {
	out := in
	out.Headers = copyStrings(in.Headers)
	out.Query = copyStrings(in.Query)
	out.Metadata = copyAny(in.Metadata)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

func copyResponse(in core.TransportResponse) core.TransportResponse {
	out := in
	out.Headers = copyStrings(in.Headers)
	out.Metadata = copyAny(in.Metadata)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}

func copyAny(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
