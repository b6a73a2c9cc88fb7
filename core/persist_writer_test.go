package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingPersistence struct {
	mu      sync.Mutex
	gate    chan struct{}
	saves   map[string][][]byte
	started chan struct{}
}

func newBlockingPersistence() *blockingPersistence {
	return &blockingPersistence{
		gate:    make(chan struct{}),
		saves:   map[string][][]byte{},
		started: make(chan struct{}, 16),
	}
}

func (p *blockingPersistence) Load(context.Context, string) ([]byte, error) {
	return nil, ErrBlobNotFound
}

func (p *blockingPersistence) Save(_ context.Context, key string, payload []byte) error {
	p.started <- struct{}{}
	<-p.gate
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves[key] = append(p.saves[key], append([]byte(nil), payload...))
	return nil
}

func (p *blockingPersistence) Saves(key string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.saves[key]...)
}

func TestAsyncPersistWriterKeepsLatestPayloadPerKey(t *testing.T) {
	persistence := newBlockingPersistence()
	writer := NewAsyncPersistWriter(persistence, nil)

	writer.Persist(context.Background(), "token", []byte("v1"))
	select {
	case <-persistence.started:
	case <-time.After(time.Second):
		t.Fatalf("expected first save to start")
	}
	writer.Persist(context.Background(), "token", []byte("v2"))
	writer.Persist(context.Background(), "token", []byte("v3"))
	close(persistence.gate)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := writer.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	saves := persistence.Saves("token")
	if len(saves) != 2 || string(saves[0]) != "v1" || string(saves[1]) != "v3" {
		t.Fatalf("expected v1 then v3, got %q", saves)
	}
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAsyncPersistWriterReportsFailures(t *testing.T) {
	sink := newRecordingSink()
	writer := NewAsyncPersistWriter(failingPersistence{saveErr: errors.New("quota")}, sink)
	writer.Persist(context.Background(), "sessions", []byte("{}"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.Count("sessions") != 1 {
		t.Fatalf("expected failure to reach sink")
	}

	writer.Persist(context.Background(), "sessions", []byte("{}"))
	if sink.Count("sessions") != 2 {
		t.Fatalf("expected writes after close to be reported")
	}
}

func TestAsyncPersistWriterSurvivesCanceledCallerContext(t *testing.T) {
	persistence := NewMemoryPersistence()
	writer := NewAsyncPersistWriter(persistence, nil)
	ctx, cancel := context.WithCancel(context.Background())
	writer.Persist(ctx, "token", []byte("kept"))
	cancel()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	if err := writer.Close(flushCtx); err != nil {
		t.Fatalf("close: %v", err)
	}
	payload, err := persistence.Load(context.Background(), "token")
	if err != nil || string(payload) != "kept" {
		t.Fatalf("expected payload to be saved, got %q %v", payload, err)
	}
}

type captureEnqueuer struct {
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type captureDelivery struct {
	msg    *JobExecutionMessage
	acked  bool
	nacked *JobNackOptions
}

func (d *captureDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *captureDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *captureDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacked = &opts
	return nil
}

func TestJobPersistWriterRoundTripsThroughHandler(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	writer := NewJobPersistWriter(enqueuer, nil)
	writer.Persist(context.Background(), "token", []byte(`{"access_token":"X"}`))

	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one queued message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != PersistJobID || msg.IdempotencyKey == "" {
		t.Fatalf("unexpected job message %#v", msg)
	}

	persistence := NewMemoryPersistence()
	delivery := &captureDelivery{msg: msg}
	if err := (PersistJobHandler{Persistence: persistence}).Handle(context.Background(), delivery); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery to be acked")
	}
	payload, err := persistence.Load(context.Background(), "token")
	if err != nil || string(payload) != `{"access_token":"X"}` {
		t.Fatalf("unexpected stored payload %q %v", payload, err)
	}
}

func TestPersistJobHandlerDeadLettersFailures(t *testing.T) {
	sink := newRecordingSink()
	delivery := &captureDelivery{msg: NewPersistJobMessage("token", []byte("x"))}
	handler := PersistJobHandler{Persistence: failingPersistence{saveErr: errors.New("down")}, Sink: sink}
	if err := handler.Handle(context.Background(), delivery); err == nil {
		t.Fatalf("expected handler error")
	}
	if delivery.nacked == nil || !delivery.nacked.DeadLetter || delivery.nacked.Requeue {
		t.Fatalf("expected dead-letter nack, got %#v", delivery.nacked)
	}
	if sink.Count("token") != 1 {
		t.Fatalf("expected failure to reach sink")
	}
}

func TestJobPersistWriterEnqueueFailureGoesToSink(t *testing.T) {
	sink := newRecordingSink()
	writer := NewJobPersistWriter(&captureEnqueuer{err: errors.New("queue full")}, sink)
	writer.Persist(context.Background(), "token", []byte("x"))
	if sink.Count("token") != 1 {
		t.Fatalf("expected enqueue failure to reach sink")
	}
}
