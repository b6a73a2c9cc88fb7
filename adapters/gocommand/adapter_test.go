package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	miniappcommand "github.com/goliatone/go-miniapp/command"
	"github.com/goliatone/go-miniapp/core"
	miniappquery "github.com/goliatone/go-miniapp/query"
)

type blankTypeMessage struct{}

func (blankTypeMessage) Type() string { return "" }

type persistQueueMessage struct{}

func (persistQueueMessage) Type() string { return "miniapp.command.persist_queue" }

type stubService struct {
	lastCode string
	lastPath string
	token    core.AccessToken
	sessions map[string]string
}

func (s *stubService) ExchangeCode(_ context.Context, code string) (core.CodeExchangeResult, error) {
	s.lastCode = code
	if code == "bad" {
		return core.CodeExchangeResult{}, errors.New("exchange failed")
	}
	return core.CodeExchangeResult{OpenID: "U-" + code}, nil
}

func (s *stubService) Request(_ context.Context, opts core.RequestOptions) (core.Response, error) {
	s.lastPath = opts.Path
	return core.Response{Data: map[string]any{"path": opts.Path}}, nil
}

func (s *stubService) Upload(_ context.Context, opts core.UploadOptions) (core.Response, error) {
	s.lastPath = opts.Path
	return core.Response{}, nil
}

func (s *stubService) PayRequest(_ context.Context, path string, _ map[string]any) (core.Response, error) {
	s.lastPath = path
	return core.Response{}, nil
}

func (s *stubService) AccessToken(context.Context) (core.AccessToken, error) {
	return s.token, nil
}

func (s *stubService) TokenState() core.TokenState {
	return core.TokenStateValid
}

func (s *stubService) SessionSecret(identity string) (string, bool) {
	secret, ok := s.sessions[identity]
	return secret, ok
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(miniappcommand.ExchangeCodeMessage{Code: "c"}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	err := ValidateMessageContract(blankTypeMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected bad input envelope for empty type, got %v", err)
	}
	if err := ValidateMessageContract(miniappcommand.ExchangeCodeMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegisterWiresCommandsAndQueries(t *testing.T) {
	svc := &stubService{
		token:    core.AccessToken{Token: "T", ExpiresIn: 7200},
		sessions: map[string]string{"U1": "S1"},
	}
	bindings, err := Register(NewRegistryAdapter(command.NewRegistry()), svc)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(bindings.Unsubscribe)
	if bindings.Len() != 7 {
		t.Fatalf("expected seven subscriptions, got %d", bindings.Len())
	}

	ctx := context.Background()
	exchanged, err := DispatchWithResult[miniappcommand.ExchangeCodeMessage, core.CodeExchangeResult](ctx, miniappcommand.ExchangeCodeMessage{Code: "c1"})
	if err != nil {
		t.Fatalf("dispatch exchange: %v", err)
	}
	if svc.lastCode != "c1" || exchanged.OpenID != "U-c1" {
		t.Fatalf("unexpected exchange delegation %q %#v", svc.lastCode, exchanged)
	}

	res, err := DispatchWithResult[miniappcommand.RequestMessage, core.Response](ctx, miniappcommand.RequestMessage{Options: core.RequestOptions{Path: "/wxa/x"}})
	if err != nil {
		t.Fatalf("dispatch request: %v", err)
	}
	if res.Data["path"] != "/wxa/x" {
		t.Fatalf("unexpected request result %#v", res)
	}

	token, err := Query[miniappquery.AccessTokenMessage, core.AccessToken](ctx, miniappquery.AccessTokenMessage{})
	if err != nil || token.Token != "T" {
		t.Fatalf("unexpected token query %#v %v", token, err)
	}
	lookup, err := Query[miniappquery.SessionSecretMessage, miniappquery.SessionLookup](ctx, miniappquery.SessionSecretMessage{OpenID: "U1"})
	if err != nil || !lookup.Found || lookup.SessionKey != "S1" {
		t.Fatalf("unexpected session lookup %#v %v", lookup, err)
	}
}

func TestDispatchWithResultRejectsInvalidMessages(t *testing.T) {
	if _, err := DispatchWithResult[miniappcommand.ExchangeCodeMessage, core.CodeExchangeResult](context.Background(), miniappcommand.ExchangeCodeMessage{Code: "  "}); err == nil {
		t.Fatalf("expected blank code to fail before dispatch")
	}
}

func TestRegisterRequiresService(t *testing.T) {
	if _, err := Register(nil, nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[persistQueueMessage](func(context.Context, persistQueueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get("miniapp.command.persist_queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
