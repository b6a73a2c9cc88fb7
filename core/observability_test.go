package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) Counters() []capturedCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedCounter(nil), m.counters...)
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) Records() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]capturedLog(nil), (*l.records)...)
}

func TestObserveOperationLogsAndRecordsMetrics(t *testing.T) {
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	obs := &observer{logger: logger, metrics: metrics}

	obs.observeOperation(context.Background(), time.Now(), "Pay Request", &PlatformError{ErrCode: 40001}, map[string]any{
		"method":     "POST",
		"app_secret": "s3cret",
	})

	records := logger.Records()
	if len(records) != 1 || records[0].level != "error" || records[0].msg != "pay_request failed" {
		t.Fatalf("unexpected log records %#v", records)
	}
	if records[0].fields["app_secret"] != RedactedValue {
		t.Fatalf("expected secret to be redacted, got %#v", records[0].fields["app_secret"])
	}
	if records[0].fields["errcode"] != 40001 {
		t.Fatalf("expected errcode field, got %#v", records[0].fields["errcode"])
	}
	counters := metrics.Counters()
	if len(counters) != 1 || counters[0].name != "miniapp.pay_request.total" {
		t.Fatalf("unexpected counters %#v", counters)
	}
	if counters[0].tags["status"] != "failure" || counters[0].tags["method"] != "POST" || counters[0].tags["errcode"] != "40001" {
		t.Fatalf("unexpected tags %#v", counters[0].tags)
	}
}

func TestObserverTraceOnlyWhenDebug(t *testing.T) {
	logger := newCaptureLogger()
	quiet := &observer{logger: logger}
	quiet.trace(context.Background(), "platform request", map[string]any{"path": "/x"})
	if len(logger.Records()) != 0 {
		t.Fatalf("expected no debug logs when debug is off")
	}

	verbose := &observer{logger: logger, debug: true}
	verbose.trace(context.Background(), "platform request", map[string]any{"path": "/x", "query": map[string]string{"access_token": "T"}})
	records := logger.Records()
	if len(records) != 1 || records[0].level != "debug" {
		t.Fatalf("expected one debug record, got %#v", records)
	}
	query, _ := records[0].fields["query"].(map[string]any)
	if query["access_token"] != RedactedValue {
		t.Fatalf("expected query token to be redacted, got %#v", records[0].fields["query"])
	}
}

func TestLoggingDiagnosticSinkRespectsDebugFlag(t *testing.T) {
	logger := newCaptureLogger()
	LoggingDiagnosticSink{Logger: logger}.ReportPersistFailure(context.Background(), "token", errors.New("x"))
	if len(logger.Records()) != 0 {
		t.Fatalf("expected disabled sink to stay silent")
	}
	LoggingDiagnosticSink{Logger: logger, Enabled: true}.ReportPersistFailure(context.Background(), "token", errors.New("x"))
	records := logger.Records()
	if len(records) != 1 || records[0].level != "warn" || records[0].fields["key"] != "token" {
		t.Fatalf("unexpected sink records %#v", records)
	}
}

func TestRedactSensitiveMapKeepsTraceabilityKeys(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"openid":      "U",
		"errcode":     40001,
		"session_key": "S",
		"js_code":     "c",
		"nested":      map[string]any{"mp_sig": "x", "path": "/p"},
	})
	if redacted["openid"] != "U" || redacted["errcode"] != 40001 {
		t.Fatalf("expected traceability keys to stay visible, got %#v", redacted)
	}
	if redacted["session_key"] != RedactedValue || redacted["js_code"] != RedactedValue {
		t.Fatalf("expected secrets to be redacted, got %#v", redacted)
	}
	nested := redacted["nested"].(map[string]any)
	if nested["mp_sig"] != RedactedValue || nested["path"] != "/p" {
		t.Fatalf("unexpected nested redaction %#v", nested)
	}
}
