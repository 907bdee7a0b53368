package zipkintracer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

var errNoError = errors.New("not an error")

// StateLogger is a Logger that logs error only if logErrorInterval have passed
// from the last error, or it is a different error than the last seen.
type StateLogger struct {
	logger           Logger
	clock            clockz.Clock
	logErrorInterval time.Duration
	lastError        error
	lastErrorTime    time.Time
	mutex            sync.Mutex
}

// NewStateLogger creates a new stateLogger
func NewStateLogger(logger Logger, logErrorInterval time.Duration) *StateLogger {
	return NewStateLoggerWithClock(logger, logErrorInterval, clockz.RealClock)
}

// NewStateLoggerWithClock is NewStateLogger with an injectable clock.
func NewStateLoggerWithClock(logger Logger, logErrorInterval time.Duration, clock clockz.Clock) *StateLogger {
	return &StateLogger{
		logger:           logger,
		clock:            clock,
		logErrorInterval: logErrorInterval,
		lastError:        errNoError,
	}
}

// LogError logs an error if it is different from the last seen error,
// or that logErrorInterval have passed since the last reported error.
// Errors are compared by message.
func (se *StateLogger) LogError(err error) {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	if se.lastError != nil && err.Error() == se.lastError.Error() &&
		se.clock.Since(se.lastErrorTime) < se.logErrorInterval {
		return
	}
	_ = se.logger.Log("err", err.Error())
	se.lastError = err
	se.lastErrorTime = se.clock.Now()
}

// Fixed makes the stateLogger understand that the state is fixed, and when
// the next error will occur, it will log it.
func (se *StateLogger) Fixed(keyVal ...interface{}) {
	se.mutex.Lock()
	defer se.mutex.Unlock()
	if se.logErrorInterval == 0 || se.lastError == nil || se.lastError == errNoError {
		return
	}
	_ = se.logger.Log(keyVal...)
	se.lastError = nil
}
