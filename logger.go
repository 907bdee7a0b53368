package zipkintracer

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Logger is the key/value logging interface used throughout the package.
type Logger interface {
	Log(keyvals ...interface{}) error
}

// LoggerFunc is an adapter to allow use of ordinary functions as Loggers.
type LoggerFunc func(...interface{}) error

// Log implements Logger.
func (f LoggerFunc) Log(keyvals ...interface{}) error {
	return f(keyvals...)
}

type nopLogger struct{}

func (nopLogger) Log(...interface{}) error { return nil }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

type logrLogger struct {
	logger logr.Logger
}

// NewLogrLogger adapts a logr.Logger. The "msg" key becomes the message, an
// "err" key routes the entry to Error, all other pairs are passed along.
func NewLogrLogger(logger logr.Logger) Logger {
	return logrLogger{logger: logger}
}

func (l logrLogger) Log(keyvals ...interface{}) error {
	var (
		msg  string
		err  error
		rest = make([]interface{}, 0, len(keyvals))
	)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			// dangling value, e.g. StateLogger.Fixed("recovered")
			if msg == "" {
				msg = fmt.Sprint(keyvals[i])
			}
			break
		}
		switch keyvals[i] {
		case "msg":
			msg = fmt.Sprint(keyvals[i+1])
		case "err":
			switch v := keyvals[i+1].(type) {
			case error:
				err = v
			default:
				err = errors.New(fmt.Sprint(v))
			}
		default:
			rest = append(rest, fmt.Sprint(keyvals[i]), keyvals[i+1])
		}
	}

	if err != nil {
		l.logger.Error(err, msg, rest...)
		return nil
	}
	l.logger.Info(msg, rest...)
	return nil
}
