package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ErrBlobNotFound is returned by Persistence.Load when no blob is stored under a key.
var ErrBlobNotFound = errors.New("core: persisted blob not found")

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter performs a single HTTP exchange. Implementations must not retry.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Persistence is the key-value blob store backing the credential cache.
type Persistence interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// PersistWriter accepts fire-and-forget writes. Failures never reach the caller.
type PersistWriter interface {
	Persist(ctx context.Context, key string, payload []byte)
}

// DiagnosticSink receives persistence failures that were swallowed.
type DiagnosticSink interface {
	ReportPersistFailure(ctx context.Context, key string, err error)
}

type DiagnosticSinkFunc func(ctx context.Context, key string, err error)

func (f DiagnosticSinkFunc) ReportPersistFailure(ctx context.Context, key string, err error) {
	if f == nil {
		return
	}
	f(ctx, key, err)
}

// PaySignatureFunc computes the payment-secret signature over a stamped payload.
type PaySignatureFunc func(payload map[string]any, path string, secret string) string

// SessionSignatureFunc computes the user-session signature over a stamped,
// already pay-signed payload.
type SessionSignatureFunc func(payload map[string]any, path string, accessToken string, sessionKey string) string

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// NopMetricsRecorder drops every sample.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type RateLimitKey struct {
	AppID     string
	BucketKey string
}

type ResponseMeta struct {
	StatusCode int
	ErrCode    int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

// RateLimitPolicy guards outbound calls. BeforeCall may reject a call but
// never retries one.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ResponseMeta) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
