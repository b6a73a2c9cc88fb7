package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

type stubMutatingService struct {
	exchangeFn func(ctx context.Context, code string) (core.CodeExchangeResult, error)
	requestFn  func(ctx context.Context, opts core.RequestOptions) (core.Response, error)
	uploadFn   func(ctx context.Context, opts core.UploadOptions) (core.Response, error)
	payFn      func(ctx context.Context, path string, payload map[string]any) (core.Response, error)
}

func (s stubMutatingService) ExchangeCode(ctx context.Context, code string) (core.CodeExchangeResult, error) {
	return s.exchangeFn(ctx, code)
}

func (s stubMutatingService) Request(ctx context.Context, opts core.RequestOptions) (core.Response, error) {
	return s.requestFn(ctx, opts)
}

func (s stubMutatingService) Upload(ctx context.Context, opts core.UploadOptions) (core.Response, error) {
	return s.uploadFn(ctx, opts)
}

func (s stubMutatingService) PayRequest(ctx context.Context, path string, payload map[string]any) (core.Response, error) {
	return s.payFn(ctx, path, payload)
}

func TestExchangeCodeCommandDelegatesAndStoresResult(t *testing.T) {
	svc := stubMutatingService{
		exchangeFn: func(_ context.Context, code string) (core.CodeExchangeResult, error) {
			if code != "c-1" {
				t.Fatalf("unexpected code %q", code)
			}
			return core.CodeExchangeResult{OpenID: "U", SessionKey: "S"}, nil
		},
	}
	collector := gocmd.NewResult[core.CodeExchangeResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewExchangeCodeCommand(svc).Execute(ctx, ExchangeCodeMessage{Code: "c-1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.OpenID != "U" {
		t.Fatalf("expected stored result, got %#v %v", result, ok)
	}
}

func TestPlatformCommandsDelegateToService(t *testing.T) {
	svc := stubMutatingService{
		requestFn: func(_ context.Context, opts core.RequestOptions) (core.Response, error) {
			return core.Response{StatusCode: 200, Data: map[string]any{"path": opts.Path}}, nil
		},
		uploadFn: func(_ context.Context, opts core.UploadOptions) (core.Response, error) {
			return core.Response{StatusCode: 200, Data: map[string]any{"fields": len(opts.Fields)}}, nil
		},
		payFn: func(_ context.Context, path string, payload map[string]any) (core.Response, error) {
			return core.Response{StatusCode: 200, Data: map[string]any{"path": path, "openid": payload["openid"]}}, nil
		},
	}

	t.Run("request", func(t *testing.T) {
		collector := gocmd.NewResult[core.Response]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRequestCommand(svc).Execute(ctx, RequestMessage{Options: core.RequestOptions{Path: "/p"}}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res, _ := collector.Load(); res.Data["path"] != "/p" {
			t.Fatalf("unexpected result %#v", res)
		}
	})

	t.Run("upload", func(t *testing.T) {
		collector := gocmd.NewResult[core.Response]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		msg := UploadMessage{Options: core.UploadOptions{Path: "/u", Fields: []core.FormField{core.PlainValue("a", "1")}}}
		if err := NewUploadCommand(svc).Execute(ctx, msg); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res, _ := collector.Load(); res.Data["fields"] != 1 {
			t.Fatalf("unexpected result %#v", res)
		}
	})

	t.Run("pay", func(t *testing.T) {
		collector := gocmd.NewResult[core.Response]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		msg := PayRequestMessage{Path: "/pay", Payload: map[string]any{"openid": "U"}}
		if err := NewPayRequestCommand(svc).Execute(ctx, msg); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res, _ := collector.Load(); res.Data["openid"] != "U" {
			t.Fatalf("unexpected result %#v", res)
		}
	})
}

func TestCommandPropagatesServiceErrors(t *testing.T) {
	svc := stubMutatingService{
		exchangeFn: func(context.Context, string) (core.CodeExchangeResult, error) {
			return core.CodeExchangeResult{}, &core.PlatformError{ErrCode: 40029}
		},
	}
	err := NewExchangeCodeCommand(svc).Execute(context.Background(), ExchangeCodeMessage{Code: "bad"})
	if _, ok := core.AsPlatformError(err); !ok {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestCommandWithoutServiceReturnsInternalEnvelope(t *testing.T) {
	err := NewRequestCommand(nil).Execute(context.Background(), RequestMessage{})
	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}

func TestMessagesValidateWithFieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		field string
	}{
		{"blank code", ExchangeCodeMessage{Code: "  "}.Validate(), "code"},
		{"missing path", RequestMessage{}.Validate(), "path"},
		{"bad method", RequestMessage{Options: core.RequestOptions{Path: "/p", Method: "TRACE"}}.Validate(), "method"},
		{"no fields", UploadMessage{Options: core.UploadOptions{Path: "/u"}}.Validate(), "fields"},
		{"missing openid", PayRequestMessage{Path: "/pay", Payload: map[string]any{"amount": 1}}.Validate(), "payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", tc.err)
			}
			if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput || rich.Code != 400 {
				t.Fatalf("unexpected envelope %#v", rich)
			}
			found := false
			for _, fieldErr := range rich.AllValidationErrors() {
				if fieldErr.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field error for %s, got %#v", tc.field, rich.AllValidationErrors())
			}
		})
	}

	if err := (PayRequestMessage{Path: "/pay", Payload: map[string]any{"openid": "U"}}).Validate(); err != nil {
		t.Fatalf("expected valid pay message, got %v", err)
	}
}
