package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-miniapp/core"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// PersistWorker drains persist jobs into a core.Persistence.
type PersistWorker struct {
	Dequeuer  core.JobDequeuer
	Handler   core.PersistJobHandler
	Hook      core.JobWorkerHook
	IdleDelay time.Duration
	now       func() time.Time
}

func NewPersistWorker(dequeuer core.JobDequeuer, persistence core.Persistence, sink core.DiagnosticSink) *PersistWorker {
	return &PersistWorker{
		Dequeuer:  dequeuer,
		Handler:   core.PersistJobHandler{Persistence: persistence, Sink: sink},
		IdleDelay: 250 * time.Millisecond,
		now:       time.Now,
	}
}

// ProcessOne handles a single delivery. It returns false when the queue was empty.
func (w *PersistWorker) ProcessOne(ctx context.Context) (bool, error) {
	if w == nil || w.Dequeuer == nil {
		return false, fmt.Errorf("gojob: persist worker dequeuer is not configured")
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	clock := w.now
	if clock == nil {
		clock = time.Now
	}
	event := core.JobWorkerEvent{Message: delivery.Message(), Attempt: 1, StartedAt: clock()}
	w.emit(ctx, event, (core.JobWorkerHook).OnStart)

	err = w.Handler.Handle(ctx, delivery)
	event.Duration = clock().Sub(event.StartedAt)
	event.Err = err
	if err != nil {
		w.emit(ctx, event, (core.JobWorkerHook).OnFailure)
		return true, err
	}
	w.emit(ctx, event, (core.JobWorkerHook).OnSuccess)
	return true, nil
}

// Run processes deliveries until ctx is done. Handler failures are already
// dead-lettered and reported, so only dequeue errors stop the loop.
func (w *PersistWorker) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		processed, err := w.ProcessOne(ctx)
		if processed {
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.idleDelay()):
		}
	}
	return nil
}

func (w *PersistWorker) idleDelay() time.Duration {
	if w.IdleDelay <= 0 {
		return 250 * time.Millisecond
	}
	return w.IdleDelay
}

func (w *PersistWorker) emit(ctx context.Context, event core.JobWorkerEvent, fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	if w.Hook == nil {
		return
	}
	fn(w.Hook, ctx, event)
}

// WorkerHookAdapter forwards go-job worker events to a core hook, for hosts
// that run the persist handler inside a go-job worker.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// LoggingHook records persist job outcomes. Blob payloads are never logged.
type LoggingHook struct {
	Logger glog.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "debug", "persist job started", event)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "debug", "persist job stored", event)
}

func (h LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "warn", "persist job dead-lettered", event)
}

func (h LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx, "info", "persist job retrying", event)
}

func (h LoggingHook) log(ctx context.Context, level string, msg string, event core.JobWorkerEvent) {
	if h.Logger == nil {
		return
	}
	logger := h.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{"key", persistKey(event.Message), "attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	switch level {
	case "warn":
		logger.Warn(msg, args...)
	case "info":
		logger.Info(msg, args...)
	default:
		logger.Debug(msg, args...)
	}
}

var (
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = LoggingHook{}
)
