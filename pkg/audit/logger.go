package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes events as structured log entries. It is the default sink
// when no audit directory is configured.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger wraps logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger.WithField("audit", true)}
}

// Log writes event at info level, or warn when it records a failure or denial
func (l *LogrusLogger) Log(_ context.Context, event *Event) error {
	entry := l.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"status":     event.Status,
		"user_id":    event.UserID,
		"ip_address": event.IPAddress,
		"request_id": event.RequestID,
		"path":       event.Path,
	})
	if event.LoginMethod != "" {
		entry = entry.WithField("login_method", event.LoginMethod)
	}
	if event.Username != "" {
		entry = entry.WithField("username", event.Username)
	}

	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

func (l *LogrusLogger) Close() error { return nil }

// MultiLogger fans events out to several sinks
type MultiLogger []Logger

// Log writes to every sink and joins their errors
func (m MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m MultiLogger) Close() error {
	var errs []error
	for _, l := range m {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
