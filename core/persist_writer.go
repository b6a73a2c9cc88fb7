package core

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

const PersistJobID = "miniapp.credentials.persist"

var ErrPersistWriterClosed = fmt.Errorf("core: persist writer is closed")

type pendingWrite struct {
	ctx     context.Context
	payload []byte
}

// AsyncPersistWriter saves blobs on a background goroutine. Only the newest
// pending payload per key is kept, so the stored state converges on the most
// recent in-memory state without blocking callers.
type AsyncPersistWriter struct {
	persistence Persistence
	sink        DiagnosticSink

	mu         sync.Mutex
	pending    map[string]pendingWrite
	order      []string
	closed     bool
	idle       chan struct{}
	idleClosed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewAsyncPersistWriter(persistence Persistence, sink DiagnosticSink) *AsyncPersistWriter {
	if sink == nil {
		sink = NopDiagnosticSink{}
	}
	idle := make(chan struct{})
	close(idle)
	w := &AsyncPersistWriter{
		persistence: persistence,
		sink:        sink,
		pending:     map[string]pendingWrite{},
		idle:        idle,
		idleClosed:  true,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncPersistWriter) Persist(ctx context.Context, key string, payload []byte) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.sink.ReportPersistFailure(ctx, key, ErrPersistWriterClosed)
		return
	}
	if _, queued := w.pending[key]; !queued {
		w.order = append(w.order, key)
	}
	w.pending[key] = pendingWrite{
		ctx:     context.WithoutCancel(ctx),
		payload: append([]byte(nil), payload...),
	}
	if w.idleClosed {
		w.idle = make(chan struct{})
		w.idleClosed = false
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every write queued so far has been attempted.
func (w *AsyncPersistWriter) Flush(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and stops the background goroutine.
func (w *AsyncPersistWriter) Close(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	close(w.stop)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncPersistWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *AsyncPersistWriter) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			if !w.idleClosed {
				close(w.idle)
				w.idleClosed = true
			}
			w.mu.Unlock()
			return
		}
		key := w.order[0]
		w.order = w.order[1:]
		write := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		if err := w.save(write.ctx, key, write.payload); err != nil {
			w.sink.ReportPersistFailure(write.ctx, key, err)
		}
	}
}

func (w *AsyncPersistWriter) save(ctx context.Context, key string, payload []byte) (err error) {
	if w.persistence == nil {
		return fmt.Errorf("core: persistence is not configured")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: persistence save panicked: %v", recovered)
		}
	}()
	return w.persistence.Save(ctx, key, payload)
}

// SyncPersistWriter saves inline. Failures still go to the sink only.
type SyncPersistWriter struct {
	Persistence Persistence
	Sink        DiagnosticSink
}

func (w SyncPersistWriter) Persist(ctx context.Context, key string, payload []byte) {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if w.Persistence == nil {
		err = fmt.Errorf("core: persistence is not configured")
	} else {
		err = w.Persistence.Save(ctx, key, payload)
	}
	if err != nil && w.Sink != nil {
		w.Sink.ReportPersistFailure(ctx, key, err)
	}
}

// JobPersistWriter hands blobs to a job queue; PersistJobHandler performs the write.
type JobPersistWriter struct {
	Enqueuer JobEnqueuer
	Sink     DiagnosticSink
}

func NewJobPersistWriter(enqueuer JobEnqueuer, sink DiagnosticSink) *JobPersistWriter {
	return &JobPersistWriter{Enqueuer: enqueuer, Sink: sink}
}

func (w *JobPersistWriter) Persist(ctx context.Context, key string, payload []byte) {
	if ctx == nil {
		ctx = context.Background()
	}
	err := w.enqueue(ctx, key, payload)
	if err != nil && w != nil && w.Sink != nil {
		w.Sink.ReportPersistFailure(ctx, key, err)
	}
}

func (w *JobPersistWriter) enqueue(ctx context.Context, key string, payload []byte) error {
	if w == nil || w.Enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is not configured")
	}
	return w.Enqueuer.Enqueue(ctx, NewPersistJobMessage(key, payload))
}

func NewPersistJobMessage(key string, payload []byte) *JobExecutionMessage {
	key = strings.TrimSpace(key)
	sum := sha256.Sum256(payload)
	return &JobExecutionMessage{
		JobID: PersistJobID,
		Parameters: map[string]any{
			"key":     key,
			"payload": base64.StdEncoding.EncodeToString(payload),
		},
		IdempotencyKey: key + ":" + hex.EncodeToString(sum[:8]),
	}
}

// DecodePersistJobMessage extracts the key and payload from a persist job.
func DecodePersistJobMessage(msg *JobExecutionMessage) (string, []byte, error) {
	if msg == nil {
		return "", nil, fmt.Errorf("core: persist job message is required")
	}
	if strings.TrimSpace(msg.JobID) != PersistJobID {
		return "", nil, fmt.Errorf("core: unexpected job id %q", msg.JobID)
	}
	key, _ := msg.Parameters["key"].(string)
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil, fmt.Errorf("core: persist job key is required")
	}
	encoded, _ := msg.Parameters["payload"].(string)
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("core: persist job payload is invalid: %w", err)
	}
	return key, payload, nil
}

type PersistJobHandler struct {
	Persistence Persistence
	Sink        DiagnosticSink
}

// Handle saves one delivery. Failed writes are dead-lettered, never requeued.
func (h PersistJobHandler) Handle(ctx context.Context, delivery JobDelivery) error {
	if delivery == nil {
		return fmt.Errorf("core: job delivery is required")
	}
	msg := delivery.Message()
	err := h.Execute(ctx, msg)
	if err != nil {
		key := ""
		if msg != nil {
			key, _ = msg.Parameters["key"].(string)
		}
		if h.Sink != nil {
			h.Sink.ReportPersistFailure(ctx, key, err)
		}
		if nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

func (h PersistJobHandler) Execute(ctx context.Context, msg *JobExecutionMessage) error {
	if h.Persistence == nil {
		return fmt.Errorf("core: persistence is not configured")
	}
	key, payload, err := DecodePersistJobMessage(msg)
	if err != nil {
		return err
	}
	return h.Persistence.Save(ctx, key, payload)
}

type NopDiagnosticSink struct{}

func (NopDiagnosticSink) ReportPersistFailure(context.Context, string, error) {}

// LoggingDiagnosticSink logs swallowed persistence failures when Enabled.
type LoggingDiagnosticSink struct {
	Logger  Logger
	Enabled bool
}

func (s LoggingDiagnosticSink) ReportPersistFailure(ctx context.Context, key string, err error) {
	if !s.Enabled || s.Logger == nil || err == nil {
		return
	}
	logger := s.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn("credential persistence failed", "key", key, "error", err.Error())
}

var (
	_ PersistWriter  = (*AsyncPersistWriter)(nil)
	_ PersistWriter  = SyncPersistWriter{}
	_ PersistWriter  = (*JobPersistWriter)(nil)
	_ DiagnosticSink = NopDiagnosticSink{}
	_ DiagnosticSink = LoggingDiagnosticSink{}
	_ DiagnosticSink = DiagnosticSinkFunc(nil)
)
