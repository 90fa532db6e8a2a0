package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPublishTimeout bounds each sink publish when none is configured
const DefaultPublishTimeout = 5 * time.Second

// Sink delivers events to one destination
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// Recorder observes publish outcomes
type Recorder interface {
	RecordNotification(sink, eventType string, err error)
}

// Emitter fans events out to every sink. Publishing is best effort:
// failures are logged and recorded but never returned to the caller.
type Emitter struct {
	sinks    []Sink
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures an Emitter
type Option func(*Emitter)

// WithTimeout sets the per-publish timeout
func WithTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRecorder sets the publish outcome recorder
func WithRecorder(r Recorder) Option {
	return func(e *Emitter) { e.recorder = r }
}

// WithClock overrides the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// NewEmitter creates an emitter publishing to sinks
func NewEmitter(sinks []Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sinks:   sinks,
		timeout: DefaultPublishTimeout,
		now:     time.Now,
		log:     logger.WithComponent("notify"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sinks returns the configured sinks
func (e *Emitter) Sinks() []Sink {
	if e == nil {
		return nil
	}
	return e.sinks
}

// Emit publishes a change of entity. source is the request path of the
// entity. A nil Emitter discards the event.
func (e *Emitter) Emit(ctx context.Context, eventType, source string, entity model.Entity) {
	if e == nil || len(e.sinks) == 0 {
		return
	}

	ev, err := e.newEvent(eventType, source, entity)
	if err != nil {
		e.log.Error().Err(err).Str("type", eventType).Str("source", source).Msg("Failed to build event")
		return
	}

	ctx, span := otel.Tracer("registry.notify").Start(ctx, "notify.emit",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String(tracing.AttrEventType, eventType)),
	)
	defer span.End()

	for _, sink := range e.sinks {
		e.publish(ctx, span, sink, ev)
	}
}

func (e *Emitter) publish(ctx context.Context, span trace.Span, sink Sink, ev *Event) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := sink.Publish(ctx, ev)
	if e.recorder != nil {
		e.recorder.RecordNotification(sink.Name(), ev.Type, err)
	}
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.String(tracing.AttrSink, sink.Name())))
		span.SetStatus(codes.Error, "publish failed")
		e.log.Warn().
			Err(err).
			Str("sink", sink.Name()).
			Str("type", ev.Type).
			Str("subject", ev.Subject).
			Msg("Failed to publish event")
	}
}

func (e *Emitter) newEvent(eventType, source string, entity model.Entity) (*Event, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:              uuid.NewString(),
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         entity.Base().ID,
		Time:            e.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}, nil
}

// Close closes every sink
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	var firstErr error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			e.log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to close sink")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
