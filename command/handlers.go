package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-miniapp/core"
)

// MutatingService is the subset of the client that commands drive.
type MutatingService interface {
	ExchangeCode(ctx context.Context, code string) (core.CodeExchangeResult, error)
	Request(ctx context.Context, opts core.RequestOptions) (core.Response, error)
	Upload(ctx context.Context, opts core.UploadOptions) (core.Response, error)
	PayRequest(ctx context.Context, path string, payload map[string]any) (core.Response, error)
}

type ExchangeCodeCommand struct {
	service MutatingService
}

func NewExchangeCodeCommand(service MutatingService) *ExchangeCodeCommand {
	return &ExchangeCodeCommand{service: service}
}

func (c *ExchangeCodeCommand) Execute(ctx context.Context, msg ExchangeCodeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.ExchangeCode(ctx, msg.Code)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestCommand struct {
	service MutatingService
}

func NewRequestCommand(service MutatingService) *RequestCommand {
	return &RequestCommand{service: service}
}

func (c *RequestCommand) Execute(ctx context.Context, msg RequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: request service is required")
	}
	out, err := c.service.Request(ctx, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UploadCommand struct {
	service MutatingService
}

func NewUploadCommand(service MutatingService) *UploadCommand {
	return &UploadCommand{service: service}
}

func (c *UploadCommand) Execute(ctx context.Context, msg UploadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: upload service is required")
	}
	out, err := c.service.Upload(ctx, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PayRequestCommand struct {
	service MutatingService
}

func NewPayRequestCommand(service MutatingService) *PayRequestCommand {
	return &PayRequestCommand{service: service}
}

func (c *PayRequestCommand) Execute(ctx context.Context, msg PayRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.PayRequest(ctx, msg.Path, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

var (
	_ gocmd.Commander[ExchangeCodeMessage] = (*ExchangeCodeCommand)(nil)
	_ gocmd.Commander[RequestMessage]      = (*RequestCommand)(nil)
	_ gocmd.Commander[UploadMessage]       = (*UploadCommand)(nil)
	_ gocmd.Commander[PayRequestMessage]   = (*PayRequestCommand)(nil)
)
