package zipkintracer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

const (
	defaultBatchInterval = time.Second
	defaultBatchSize     = 100
	defaultMaxBacklog    = 1000
	defaultQueueSize     = 64
	defaultErrorInterval = 10 * time.Second
)

// ErrRecorderClosed is returned by Flush after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// BatchRecorder receives finished spans from a zipkin tracer and hands
// them to a Sender in batches, in the order they finished. A batch goes
// out when BatchSize spans are pending, when BatchInterval elapses, or on
// Flush. A batch the sender rejects stays pending for the next attempt;
// past MaxBacklog the oldest pending spans are dropped.
type BatchRecorder struct {
	sender        Sender
	logger        Logger
	stateLogger   *StateLogger
	clock         clockz.Clock
	batchInterval time.Duration
	batchSize     int
	maxBacklog    int
	spanc         chan model.SpanModel
	flushc        chan chan error
	quit          chan struct{}
	shutdown      chan error
	closeOnce     sync.Once
	closeErr      error
	dropped       int64
}

// RecorderOption sets a parameter for the BatchRecorder
type RecorderOption func(r *BatchRecorder)

// RecorderLogger sets the logger used to report errors in the collection
// process. By default, a no-op logger is used.
func RecorderLogger(logger Logger) RecorderOption {
	return func(r *BatchRecorder) { r.logger = logger }
}

// RecorderBatchInterval sets the maximum duration spans are buffered before
// they are handed to the sender. The default, also used for a non-positive
// d, is 1 second.
func RecorderBatchInterval(d time.Duration) RecorderOption {
	return func(r *BatchRecorder) { r.batchInterval = d }
}

// RecorderBatchSize sets the number of pending spans that triggers a send.
func RecorderBatchSize(n int) RecorderOption {
	return func(r *BatchRecorder) { r.batchSize = n }
}

// RecorderMaxBacklog sets the maximum number of pending spans; past it the
// oldest pending spans are disposed.
func RecorderMaxBacklog(n int) RecorderOption {
	return func(r *BatchRecorder) { r.maxBacklog = n }
}

// RecorderClock sets the clock driving the batch interval.
func RecorderClock(clock clockz.Clock) RecorderOption {
	return func(r *BatchRecorder) { r.clock = clock }
}

// NewBatchRecorder returns a running recorder sending to s.
func NewBatchRecorder(s Sender, options ...RecorderOption) *BatchRecorder {
	r := &BatchRecorder{
		sender:        s,
		logger:        NewNopLogger(),
		clock:         clockz.RealClock,
		batchInterval: defaultBatchInterval,
		batchSize:     defaultBatchSize,
		maxBacklog:    defaultMaxBacklog,
		spanc:         make(chan model.SpanModel, defaultQueueSize),
		flushc:        make(chan chan error),
		quit:          make(chan struct{}),
		shutdown:      make(chan error, 1),
	}

	for _, option := range options {
		option(r)
	}
	if r.batchInterval <= 0 {
		r.batchInterval = defaultBatchInterval
	}
	if r.batchSize < 1 {
		r.batchSize = 1
	}
	if r.maxBacklog < r.batchSize {
		r.maxBacklog = r.batchSize
	}
	r.stateLogger = NewStateLoggerWithClock(r.logger, defaultErrorInterval, r.clock)

	go r.loop()
	return r
}

// Send implements zipkin's reporter.Reporter. It blocks only while the
// hand-off queue is full; spans sent after Close are dropped.
func (r *BatchRecorder) Send(s model.SpanModel) {
	select {
	case <-r.quit:
		atomic.AddInt64(&r.dropped, 1)
		return
	default:
	}

	select {
	case r.spanc <- s:
	case <-r.quit:
		atomic.AddInt64(&r.dropped, 1)
	}
}

// Flush sends every span handed to Send so far and waits for the sender.
func (r *BatchRecorder) Flush() error {
	done := make(chan error, 1)
	select {
	case r.flushc <- done:
		return <-done
	case <-r.quit:
		return ErrRecorderClosed
	}
}

// Dropped returns the number of spans lost to backlog overflow or to a
// closed recorder.
func (r *BatchRecorder) Dropped() int64 {
	return atomic.LoadInt64(&r.dropped)
}

// Close flushes pending spans and closes the sender.
func (r *BatchRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		err := <-r.shutdown
		if cerr := r.sender.Close(); err == nil {
			err = cerr
		}
		r.closeErr = err
	})
	return r.closeErr
}

func (r *BatchRecorder) loop() {
	// The following loop is single threaded; pending is owned by it.
	pending := queue.New()
	tick := r.clock.After(r.batchInterval)

	for {
		select {
		case span := <-r.spanc:
			r.enqueue(pending, span)
			if pending.Length() >= r.batchSize {
				_ = r.send(pending)
				tick = r.clock.After(r.batchInterval)
			}
		case <-tick:
			_ = r.send(pending)
			tick = r.clock.After(r.batchInterval)
		case done := <-r.flushc:
			r.drain(pending)
			done <- r.send(pending)
		case <-r.quit:
			r.drain(pending)
			err := r.send(pending)
			// whatever the sender refused is lost now
			atomic.AddInt64(&r.dropped, int64(pending.Length()))
			r.shutdown <- err
			return
		}
	}
}

func (r *BatchRecorder) enqueue(pending *queue.Queue, span model.SpanModel) {
	if pending.Length() >= r.maxBacklog {
		pending.Remove()
		atomic.AddInt64(&r.dropped, 1)
		_ = r.logger.Log("msg", "backlog full, disposing oldest span", "size", pending.Length())
	}
	pending.Add(span)
}

// drain moves whatever Send already queued into pending.
func (r *BatchRecorder) drain(pending *queue.Queue) {
	for {
		select {
		case span := <-r.spanc:
			r.enqueue(pending, span)
		default:
			return
		}
	}
}

func (r *BatchRecorder) send(pending *queue.Queue) error {
	if pending.Length() == 0 {
		return nil
	}

	batch := make([]model.SpanModel, 0, pending.Length())
	for pending.Length() > 0 {
		batch = append(batch, pending.Remove().(model.SpanModel))
	}

	if err := r.sender.Send(batch); err != nil {
		r.stateLogger.LogError(err)
		// retried with the next send, still bounded by maxBacklog
		for _, span := range batch {
			r.enqueue(pending, span)
		}
		return err
	}
	r.stateLogger.Fixed("msg", "span sender recovered")
	return nil
}
