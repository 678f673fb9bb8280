package sentryhook

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Hook forwards error level log entries to sentry
type Hook struct {
	// Mode is attached as a tag to every event, e.g gateway or worker
	Mode string
}

func (hook Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

func (hook Hook) Fire(entry *logrus.Entry) error {
	hub := sentry.CurrentHub().Clone()
	if hub == nil {
		return nil
	}

	hub.WithScope(func(s *sentry.Scope) {
		applyFields(s, entry.Data)
		if hook.Mode != "" {
			s.SetTag("mode", hook.Mode)
		}

		if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
			s.SetExtra("message", entry.Message)
			hub.CaptureException(err)
		} else {
			hub.CaptureMessage(entry.Message)
		}
	})

	return nil
}

func applyFields(s *sentry.Scope, fields logrus.Fields) {
	for k, v := range fields {
		strV := fmt.Sprint(v)
		switch k {
		case "p":
			s.SetTag("component", strV)
		case "shard":
			s.SetTag("shard", strV)
		case "stck", logrus.ErrorKey:
		default:
			s.SetExtra(k, strV)
		}
	}
}
