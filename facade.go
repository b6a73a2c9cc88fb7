package miniapp

import (
	"fmt"

	miniappcommand "github.com/goliatone/go-miniapp/command"
	miniappquery "github.com/goliatone/go-miniapp/query"
)

type CommandQueryService interface {
	miniappcommand.MutatingService
	miniappquery.TokenReader
	miniappquery.SessionReader
}

type Commands struct {
	ExchangeCode *miniappcommand.ExchangeCodeCommand
	Request      *miniappcommand.RequestCommand
	Upload       *miniappcommand.UploadCommand
	PayRequest   *miniappcommand.PayRequestCommand
}

type Queries struct {
	AccessToken   *miniappquery.AccessTokenQuery
	TokenState    *miniappquery.TokenStateQuery
	SessionSecret *miniappquery.SessionSecretQuery
}

// Facade exposes the client as go-command handlers.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("miniapp: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			ExchangeCode: miniappcommand.NewExchangeCodeCommand(service),
			Request:      miniappcommand.NewRequestCommand(service),
			Upload:       miniappcommand.NewUploadCommand(service),
			PayRequest:   miniappcommand.NewPayRequestCommand(service),
		},
		queries: Queries{
			AccessToken:   miniappquery.NewAccessTokenQuery(service),
			TokenState:    miniappquery.NewTokenStateQuery(service),
			SessionSecret: miniappquery.NewSessionSecretQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
