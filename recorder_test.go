package zipkintracer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

// CountingReporter is a zipkin reporter that only counts spans.
type CountingReporter int32

func (c *CountingReporter) Send(span model.SpanModel) {
	atomic.AddInt32((*int32)(c), 1)
}

func (c *CountingReporter) Close() error {
	return nil
}

// flakySender records batches while healthy and rejects them otherwise.
type flakySender struct {
	MemorySender
	mu      sync.Mutex
	failing bool
	batches int
	closed  bool
}

var errUnavailable = errors.New("collector unavailable")

func (s *flakySender) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *flakySender) Send(spans []model.SpanModel) error {
	s.mu.Lock()
	failing := s.failing
	if !failing {
		s.batches++
	}
	s.mu.Unlock()
	if failing {
		return errUnavailable
	}
	return s.MemorySender.Send(spans)
}

func (s *flakySender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *flakySender) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func testSpan(name string) model.SpanModel {
	return model.SpanModel{Name: name}
}

func names(spans []model.SpanModel) []string {
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.Name)
	}
	return out
}

func TestRecorderFlushKeepsFinishOrder(t *testing.T) {
	sender := NewMemorySender()
	rec := NewBatchRecorder(sender, RecorderBatchInterval(time.Hour))
	defer rec.Close()

	for _, name := range []string{"a", "b", "c"} {
		rec.Send(testSpan(name))
	}
	assert.Equal(t, 0, sender.Len(), "nothing is sent before a batch is due")

	require.NoError(t, rec.Flush())
	assert.Equal(t, []string{"a", "b", "c"}, names(sender.AllSpans()))
}

func TestRecorderSendsFullBatches(t *testing.T) {
	sender := &flakySender{}
	rec := NewBatchRecorder(sender, RecorderBatchInterval(time.Hour), RecorderBatchSize(2))
	defer rec.Close()

	for _, name := range []string{"a", "b", "c", "d"} {
		rec.Send(testSpan(name))
	}

	require.Eventually(t, func() bool { return sender.Len() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, sender.batchCount())
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(sender.AllSpans()))
}

func TestRecorderSendsOnInterval(t *testing.T) {
	clock := clockz.NewFakeClock()
	sender := NewMemorySender()
	rec := NewBatchRecorder(sender, RecorderClock(clock), RecorderBatchInterval(time.Second))
	defer rec.Close()

	rec.Send(testSpan("a"))
	rec.Send(testSpan("b"))

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		return sender.Len() == 2
	}, time.Second, 5*time.Millisecond)
}

// countingClock counts timers armed through After.
type countingClock struct {
	clockz.Clock
	afters int32
}

func (c *countingClock) After(d time.Duration) <-chan time.Time {
	atomic.AddInt32(&c.afters, 1)
	return c.Clock.After(d)
}

func TestRecorderNonPositiveIntervalFallsBack(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		clock := &countingClock{Clock: clockz.RealClock}
		rec := NewBatchRecorder(NewMemorySender(), RecorderClock(clock), RecorderBatchInterval(d))

		time.Sleep(50 * time.Millisecond)
		assert.LessOrEqual(t, atomic.LoadInt32(&clock.afters), int32(1), "idle recorder must not re-arm its timer")
		require.NoError(t, rec.Close())
	}
}

func TestRecorderRetriesAndBoundsBacklog(t *testing.T) {
	sender := &flakySender{failing: true}
	rec := NewBatchRecorder(sender,
		RecorderBatchInterval(time.Hour),
		RecorderBatchSize(1),
		RecorderMaxBacklog(2),
	)
	defer rec.Close()

	for _, name := range []string{"a", "b", "c"} {
		rec.Send(testSpan(name))
	}
	assert.Equal(t, errUnavailable, rec.Flush())
	assert.Equal(t, int64(1), rec.Dropped())

	sender.setFailing(false)
	require.NoError(t, rec.Flush())
	assert.Equal(t, []string{"b", "c"}, names(sender.AllSpans()), "the oldest span is disposed")
}

func TestRecorderLogsSendErrorsOnce(t *testing.T) {
	m := new(mockLogger)
	m.On("Log", mock.Anything, mock.Anything).Return(nil)
	m.On("Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sender := &flakySender{failing: true}
	rec := NewBatchRecorder(sender, RecorderLogger(m), RecorderBatchInterval(time.Hour))
	defer rec.Close()

	rec.Send(testSpan("a"))
	assert.Error(t, rec.Flush())
	assert.Error(t, rec.Flush())
	m.AssertCalled(t, "Log", "err", errUnavailable.Error())
	m.AssertNumberOfCalls(t, "Log", 1)

	sender.setFailing(false)
	require.NoError(t, rec.Flush())
	m.AssertCalled(t, "Log", "msg", "span sender recovered")
}

func TestRecorderClose(t *testing.T) {
	sender := &flakySender{}
	rec := NewBatchRecorder(sender, RecorderBatchInterval(time.Hour))

	rec.Send(testSpan("a"))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.Equal(t, []string{"a"}, names(sender.AllSpans()), "close flushes pending spans")
	assert.True(t, sender.closed)

	rec.Send(testSpan("late"))
	assert.Equal(t, int64(1), rec.Dropped())
	assert.Equal(t, ErrRecorderClosed, rec.Flush())
}

func TestRecorderConcurrentSends(t *testing.T) {
	sender := NewMemorySender()
	rec := NewBatchRecorder(sender, RecorderBatchInterval(10*time.Millisecond), RecorderBatchSize(7))
	defer rec.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Send(testSpan("s"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, rec.Flush())
	assert.Equal(t, 500, sender.Len())
	assert.Zero(t, rec.Dropped())
}
