package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-miniapp/core"
	"github.com/goliatone/go-miniapp/devkit"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

type memoryQueue struct {
	mu         sync.Mutex
	pending    []*job.ExecutionMessage
	deliveries []*stubDelivery
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
	return nil
}

func (q *memoryQueue) Dequeue(context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	delivery := &stubDelivery{msg: q.pending[0]}
	q.pending = q.pending[1:]
	q.deliveries = append(q.deliveries, delivery)
	return delivery, nil
}

type stubDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (d *stubDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.nacked = true
	d.nackOpts = opts
	return nil
}

type capturingHook struct {
	mu     sync.Mutex
	events map[string][]core.JobWorkerEvent
}

func newCapturingHook() *capturingHook {
	return &capturingHook{events: map[string][]core.JobWorkerEvent{}}
}

func (h *capturingHook) record(kind string, event core.JobWorkerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[kind] = append(h.events[kind], event)
}

func (h *capturingHook) OnStart(_ context.Context, e core.JobWorkerEvent)   { h.record("start", e) }
func (h *capturingHook) OnSuccess(_ context.Context, e core.JobWorkerEvent) { h.record("success", e) }
func (h *capturingHook) OnFailure(_ context.Context, e core.JobWorkerEvent) { h.record("failure", e) }
func (h *capturingHook) OnRetry(_ context.Context, e core.JobWorkerEvent)   { h.record("retry", e) }

func (h *capturingHook) Count(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events[kind])
}

func TestPersistWriterThroughQueueStoresBlob(t *testing.T) {
	ctx := context.Background()
	q := &memoryQueue{}
	writer := core.NewJobPersistWriter(NewEnqueuerAdapter(q), nil)
	writer.Persist(ctx, "access_token", []byte(`{"access_token":"X"}`))

	persistence := devkit.NewMemoryPersistence()
	hook := newCapturingHook()
	w := NewPersistWorker(NewDequeuerAdapter(q, DefaultPersistRetryPolicy()), persistence, nil)
	w.Hook = hook

	processed, err := w.ProcessOne(ctx)
	if err != nil || !processed {
		t.Fatalf("expected one processed delivery, got %v %v", processed, err)
	}
	blob, err := persistence.Load(ctx, "access_token")
	if err != nil || string(blob) != `{"access_token":"X"}` {
		t.Fatalf("unexpected stored blob %q %v", blob, err)
	}
	if !q.deliveries[0].acked {
		t.Fatalf("expected delivery ack")
	}
	if hook.Count("start") != 1 || hook.Count("success") != 1 {
		t.Fatalf("unexpected hook events %#v", hook.events)
	}

	processed, err = w.ProcessOne(ctx)
	if processed || err != nil {
		t.Fatalf("expected empty queue, got %v %v", processed, err)
	}
}

func TestPersistWorkerDeadLettersFailedWrites(t *testing.T) {
	ctx := context.Background()
	q := &memoryQueue{}
	if err := NewEnqueuerAdapter(q).Enqueue(ctx, core.NewPersistJobMessage("session_keys", []byte("{}"))); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	sink := devkit.NewRecordingSink()
	hook := newCapturingHook()
	w := NewPersistWorker(NewDequeuerAdapter(q, DefaultPersistRetryPolicy()), devkit.UnavailablePersistence{}, sink)
	w.Hook = hook

	processed, err := w.ProcessOne(ctx)
	if !processed || err == nil {
		t.Fatalf("expected processed failure, got %v %v", processed, err)
	}
	delivery := q.deliveries[0]
	if !delivery.nacked || !delivery.nackOpts.DeadLetter || delivery.nackOpts.Requeue {
		t.Fatalf("expected dead-letter nack, got %#v", delivery.nackOpts)
	}
	if len(sink.Failures("session_keys")) != 1 || hook.Count("failure") != 1 {
		t.Fatalf("expected failure to reach sink and hook")
	}
}

func TestPersistWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &memoryQueue{}
	_ = q.Enqueue(ctx, ToExecutionMessage(core.NewPersistJobMessage("access_token", []byte("v"))))
	persistence := devkit.NewMemoryPersistence()
	w := NewPersistWorker(NewDequeuerAdapter(q, RetryPolicy{}), persistence, nil)
	w.IdleDelay = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for persistence.Saves("access_token") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected worker to stop")
	}
	if persistence.Saves("access_token") != 1 {
		t.Fatalf("expected queued write to be stored")
	}
}

func TestRetryPolicyBoundsNacks(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	early := policy.NormalizeAttempt(core.JobNackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " busy "}, 1)
	if early.Delay != 10*time.Second || !early.Requeue || early.Reason != "busy" {
		t.Fatalf("unexpected early nack %#v", early)
	}
	last := policy.NormalizeAttempt(core.JobNackOptions{Requeue: true}, 3)
	if last.Requeue || !last.DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %#v", last)
	}
	if opts := DefaultPersistRetryPolicy().NormalizeAttempt(core.JobNackOptions{Requeue: true}, 1); opts.Requeue || !opts.DeadLetter {
		t.Fatalf("expected persist policy to dead-letter immediately, got %#v", opts)
	}
	if opts := (RetryPolicy{}).NormalizeAttempt(core.JobNackOptions{}, 1); !opts.Requeue {
		t.Fatalf("expected unbounded policy to requeue, got %#v", opts)
	}
}

func TestMessageMappingKeepsPersistParameters(t *testing.T) {
	original := core.NewPersistJobMessage("access_token", []byte("blob"))
	original.DedupPolicy = "drop"
	roundTrip := FromExecutionMessage(ToExecutionMessage(original))
	key, payload, err := core.DecodePersistJobMessage(roundTrip)
	if err != nil || key != "access_token" || string(payload) != "blob" {
		t.Fatalf("unexpected round trip %q %q %v", key, payload, err)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey || roundTrip.DedupPolicy != "drop" {
		t.Fatalf("unexpected metadata %#v", roundTrip)
	}
	opts := FromNackOptions(ToNackOptions(core.JobNackOptions{Delay: time.Second, DeadLetter: true, Reason: "x"}))
	if opts.Delay != time.Second || !opts.DeadLetter || opts.Reason != "x" {
		t.Fatalf("unexpected nack mapping %#v", opts)
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	hook := newCapturingHook()
	adapter := NewWorkerHookAdapter(hook)
	started := time.Now().Add(-time.Second)
	adapter.OnRetry(context.Background(), worker.Event{
		Message:   ToExecutionMessage(core.NewPersistJobMessage("access_token", nil)),
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: started,
		Duration:  250 * time.Millisecond,
	})
	events := hook.events["retry"]
	if len(events) != 1 {
		t.Fatalf("expected one retry event")
	}
	event := events[0]
	if event.Message == nil || event.Message.JobID != core.PersistJobID || persistKey(event.Message) != "access_token" {
		t.Fatalf("unexpected message mapping %#v", event.Message)
	}
	if event.Attempt != 2 || event.Delay != 5*time.Second || event.Duration != 250*time.Millisecond || !event.StartedAt.Equal(started) {
		t.Fatalf("unexpected event mapping %#v", event)
	}
	if event.Err == nil || event.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}
