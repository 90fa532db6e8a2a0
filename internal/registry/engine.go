// Package registry implements the versioned registry engines: optimistic
// concurrency CRUD over groups and their resources, resource versions with
// optional blob content, and the catalog document.
package registry

import (
	"context"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/catalogd/registry/internal/metrics"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options carries the collaborators shared by all engines
type Options struct {
	// Emitter receives change notifications; nil discards them
	Emitter *notify.Emitter
	// Metrics records operation outcomes; nil records nothing
	Metrics *metrics.RegistryMetrics
	// PageSize bounds each document store query page
	PageSize int
	// Clock returns the current time
	Clock func() time.Time
	// ValidateID checks ids of written entities; nil accepts any id
	ValidateID func(field, id string) error
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o Options) now() time.Time {
	return o.Clock().UTC()
}

func (o Options) checkID(field, id string) error {
	if id == "" {
		return ValidationError{Reason: field + " cannot be empty"}
	}
	if o.ValidateID == nil {
		return nil
	}
	if err := o.ValidateID(field, id); err != nil {
		return ValidationError{Reason: err.Error()}
	}
	return nil
}

// SelfURL joins the registry base URL and path segments, escaping each segment
func SelfURL(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// sourceOf returns the path of a self URL, used as the event source
func sourceOf(self string) string {
	u, err := url.Parse(self)
	if err != nil || u.Path == "" {
		return self
	}
	return u.Path
}

// emit publishes a notification for entity, whose self must be set
func (o Options) emit(ctx context.Context, eventType string, entity model.Entity) {
	o.Emitter.Emit(ctx, eventType, sourceOf(entity.Base().Self), entity)
}

// span starts an engine operation span and returns a finisher recording
// the outcome in the span and the operation metrics
func (o Options) span(ctx context.Context, kind, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs, attribute.String(tracing.AttrKind, kind), attribute.String(tracing.AttrOperation, op))
	ctx, span := otel.Tracer("registry.engine").Start(ctx, "registry."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		status := statusOf(err)
		span.SetAttributes(attribute.String(tracing.AttrOutcome, status))
		if status == metrics.StatusError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.Metrics.RecordOperation(kind, op, status, time.Since(start))
	}
}

// isNil reports whether v is nil or a nil pointer, as decoded from a JSON null
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
