package zipkintracer

import (
	"sync"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"
)

// Sender is the sink a BatchRecorder flushes to.
type Sender interface {
	Send(spans []model.SpanModel) error
	Close() error
}

// MemorySender keeps every span it receives, in arrival order.
// Safe for concurrent use.
type MemorySender struct {
	mu    sync.RWMutex
	spans []model.SpanModel
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// Send implements Sender.
func (m *MemorySender) Send(spans []model.SpanModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, spans...)
	return nil
}

// Record appends a single span.
func (m *MemorySender) Record(span model.SpanModel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

// AllSpans returns a snapshot of the recorded spans.
func (m *MemorySender) AllSpans() []model.SpanModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spans := make([]model.SpanModel, len(m.spans))
	copy(spans, m.spans)
	return spans
}

// Len returns the number of recorded spans.
func (m *MemorySender) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spans)
}

// Clear drops all recorded spans.
func (m *MemorySender) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = nil
}

// Close implements Sender.
func (m *MemorySender) Close() error { return nil }

// ReporterSender forwards batches to a zipkin reporter, typically the HTTP
// reporter shipping spans to a Zipkin server.
type ReporterSender struct {
	reporter reporter.Reporter
}

// NewReporterSender wraps rep.
func NewReporterSender(rep reporter.Reporter) *ReporterSender {
	return &ReporterSender{reporter: rep}
}

// NewHTTPSender returns a sender posting spans to a Zipkin v2 endpoint such
// as http://localhost:9411/api/v2/spans.
func NewHTTPSender(url string, opts ...zipkinhttp.ReporterOption) *ReporterSender {
	return NewReporterSender(zipkinhttp.NewReporter(url, opts...))
}

// Send implements Sender.
func (s *ReporterSender) Send(spans []model.SpanModel) error {
	for _, span := range spans {
		s.reporter.Send(span)
	}
	return nil
}

// Close implements Sender.
func (s *ReporterSender) Close() error {
	return s.reporter.Close()
}
