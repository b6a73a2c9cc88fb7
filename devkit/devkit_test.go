package devkit

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-miniapp/core"
)

func TestFakeTransportAdapterScriptsAndCapturesRequests(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest",
		TransportScript{Response: core.TransportResponse{StatusCode: 429}},
		TransportScript{Response: core.TransportResponse{StatusCode: 200}},
	)

	statuses := []int{}
	for range 3 {
		res, err := adapter.Do(context.Background(), core.TransportRequest{
			Method: "GET",
			URL:    "https://api.example.test/items",
		})
		if err != nil {
			t.Fatalf("fake call: %v", err)
		}
		statuses = append(statuses, res.StatusCode)
	}
	if statuses[0] != 429 || statuses[1] != 200 || statuses[2] != 200 {
		t.Fatalf("expected scripted statuses with last repeating, got %v", statuses)
	}
	if len(adapter.Requests()) != 3 {
		t.Fatalf("expected three captured requests, got %d", len(adapter.Requests()))
	}
}

func TestFakeTransportAdapterRoutesByPath(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest").
		Route(core.TokenPath, TokenScript("T", 7200)).
		Route(core.CodeExchangePath, SessionScript("U", "S"), PlatformErrorScript(40029, "invalid code"))

	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: core.PrimaryBaseURL + core.TokenPath + "?appid=a"}); err != nil {
		t.Fatalf("token route: %v", err)
	}
	first, _ := adapter.Do(context.Background(), core.TransportRequest{URL: core.PrimaryBaseURL + core.CodeExchangePath})
	second, _ := adapter.Do(context.Background(), core.TransportRequest{URL: core.PrimaryBaseURL + core.CodeExchangePath})
	if string(first.Body) != `{"openid":"U","session_key":"S"}` {
		t.Fatalf("unexpected session body %s", first.Body)
	}
	if string(second.Body) != `{"errcode":40029,"errmsg":"invalid code"}` {
		t.Fatalf("unexpected error body %s", second.Body)
	}
	if len(adapter.RequestsTo(core.TokenPath)) != 1 || len(adapter.RequestsTo(core.CodeExchangePath)) != 2 {
		t.Fatalf("unexpected routed request counts")
	}

	unrouted, err := adapter.Do(context.Background(), core.TransportRequest{URL: core.PrimaryBaseURL + "/other"})
	if err != nil || unrouted.StatusCode != 200 {
		t.Fatalf("expected default response for unrouted path, got %#v %v", unrouted, err)
	}
}

func TestMemoryPersistenceConformance(t *testing.T) {
	store := NewMemoryPersistence()
	if err := ValidatePersistenceConformance(context.Background(), store, "access_token"); err != nil {
		t.Fatalf("conformance: %v", err)
	}
	if store.Saves("access_token") != 2 {
		t.Fatalf("expected two saves, got %d", store.Saves("access_token"))
	}
}

func TestFailingFixtures(t *testing.T) {
	store := NewMemoryPersistence()
	store.SaveErr = errors.New("disk full")
	if err := ValidatePersistenceConformance(context.Background(), store, "k"); err == nil {
		t.Fatalf("expected conformance failure")
	}
	if err := ValidatePersistenceConformance(context.Background(), UnavailablePersistence{}, "k"); err == nil {
		t.Fatalf("expected unavailable persistence to fail conformance")
	}

	sink := NewRecordingSink()
	sink.ReportPersistFailure(context.Background(), "k", errors.New("x"))
	if len(sink.Failures("k")) != 1 {
		t.Fatalf("expected one recorded failure")
	}
}

func TestTransportConformanceAndErrorScripts(t *testing.T) {
	boom := errors.New("connection reset")
	adapter := NewFakeTransportAdapter("rest", ErrorScript(boom))
	err := ValidateTransportAdapterConformance(context.Background(), adapter, core.TransportRequest{URL: core.PrimaryBaseURL + "/p"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected scripted transport error, got %v", err)
	}

	adapter.Route("/ok", JSONScript(200, map[string]any{"errcode": 0}))
	if err := ValidateTransportAdapterConformance(context.Background(), adapter, core.TransportRequest{URL: core.PrimaryBaseURL + "/ok"}); err != nil {
		t.Fatalf("expected routed call to pass, got %v", err)
	}
	if err := ValidateTransportAdapterConformance(context.Background(), NewFakeTransportAdapter(""), core.TransportRequest{}); err == nil {
		t.Fatalf("expected blank kind to fail conformance")
	}
}
