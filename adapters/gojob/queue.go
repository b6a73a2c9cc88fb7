package gojob

import (
	"context"
	"errors"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-miniapp/core"
)

var (
	errNoEnqueuer = errors.New("gojob: enqueuer is not configured")
	errNoDelivery = errors.New("gojob: delivery is not configured")
	errNoDequeuer = errors.New("gojob: dequeuer is not configured")
	errNoMessage  = errors.New("gojob: execution message is required")
)

// EnqueuerAdapter publishes persist jobs onto a go-job queue.
type EnqueuerAdapter struct {
	target queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{target: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch {
	case a == nil || a.target == nil:
		return errNoEnqueuer
	case msg == nil:
		return errNoMessage
	}
	return a.target.Enqueue(ctx, ToExecutionMessage(msg))
}

// DeliveryAdapter exposes a go-job delivery as core.JobDelivery and runs
// every nack through its RetryPolicy.
type DeliveryAdapter struct {
	source  queue.Delivery
	policy  RetryPolicy
	attempt int
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{source: delivery, policy: policy, attempt: 1}
}

func (d *DeliveryAdapter) ready() bool {
	return d != nil && d.source != nil
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if !d.ready() {
		return nil
	}
	return FromExecutionMessage(d.source.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if !d.ready() {
		return errNoDelivery
	}
	return d.source.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if !d.ready() {
		return errNoDelivery
	}
	return d.NackForAttempt(ctx, opts, d.attempt)
}

// NackForAttempt nacks as if this were the given delivery attempt.
func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if !d.ready() {
		return errNoDelivery
	}
	return d.source.Nack(ctx, ToNackOptions(d.policy.NormalizeAttempt(opts, attempt)))
}

// DequeuerAdapter pulls go-job deliveries for PersistWorker. An empty
// queue yields a nil delivery and a nil error.
type DequeuerAdapter struct {
	source queue.Dequeuer
	policy RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{source: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.source == nil {
		return nil, errNoDequeuer
	}
	next, err := a.source.Dequeue(ctx)
	if err != nil || next == nil {
		return nil, err
	}
	return NewDeliveryAdapter(next, a.policy), nil
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
)
