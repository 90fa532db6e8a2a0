package notify

import (
	"context"

	"github.com/catalogd/registry/internal/logger"
	"github.com/rs/zerolog"
)

// LogSink writes events to the structured log
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink using the component logger
func NewLogSink() *LogSink {
	return &LogSink{log: logger.WithComponent("notify.log")}
}

// NewLogSinkWithLogger creates a LogSink writing to l
func NewLogSinkWithLogger(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, ev *Event) error {
	s.log.Info().
		Str("event_id", ev.ID).
		Str("type", ev.Type).
		Str("source", ev.Source).
		Str("subject", ev.Subject).
		Msg("Resource event")
	return nil
}

func (s *LogSink) Close() error { return nil }
