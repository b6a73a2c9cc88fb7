package gocommand

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	miniappcommand "github.com/goliatone/go-miniapp/command"
	"github.com/goliatone/go-miniapp/core"
	miniappquery "github.com/goliatone/go-miniapp/query"
)

// Service is everything the registered handlers delegate to. *core.Client
// satisfies it.
type Service interface {
	miniappcommand.MutatingService
	miniappquery.TokenReader
	miniappquery.SessionReader
}

// Bindings holds the dispatcher subscriptions created by Register.
type Bindings struct {
	subscriptions []commanddispatcher.Subscription
}

// Unsubscribe removes every handler from the dispatcher.
func (b *Bindings) Unsubscribe() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.subscriptions)
}

// Register subscribes the four mutating commands and three queries. On any
// registration failure the subscriptions made so far are removed.
func Register(adapter *RegistryAdapter, service Service, runnerOpts ...runner.Option) (*Bindings, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: service is required")
	}
	if adapter == nil {
		adapter = NewRegistryAdapter(nil)
	}
	bindings := &Bindings{}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[miniappcommand.ExchangeCodeMessage](adapter, miniappcommand.NewExchangeCodeCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[miniappcommand.RequestMessage](adapter, miniappcommand.NewRequestCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[miniappcommand.UploadMessage](adapter, miniappcommand.NewUploadCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeCommand[miniappcommand.PayRequestMessage](adapter, miniappcommand.NewPayRequestCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[miniappquery.AccessTokenMessage, core.AccessToken](adapter, miniappquery.NewAccessTokenQuery(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[miniappquery.TokenStateMessage, core.TokenState](adapter, miniappquery.NewTokenStateQuery(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery[miniappquery.SessionSecretMessage, miniappquery.SessionLookup](adapter, miniappquery.NewSessionSecretQuery(service), runnerOpts...)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			bindings.Unsubscribe()
			return nil, err
		}
		bindings.subscriptions = append(bindings.subscriptions, subscription)
	}
	return bindings, nil
}

// DispatchWithResult runs a command and returns the value its handler stored.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	result := gocmd.NewResult[R]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, result), msg); err != nil {
		return zero, err
	}
	value, _ := result.Load()
	return value, nil
}
