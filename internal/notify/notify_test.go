package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/catalogd/registry/internal/model"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	events []*Event
	ctxs   []context.Context
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.ctxs = append(s.ctxs, ctx)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.err
}

type outcome struct {
	sink      string
	eventType string
	failed    bool
}

type mockRecorder struct {
	outcomes []outcome
}

func (r *mockRecorder) RecordNotification(sink, eventType string, err error) {
	r.outcomes = append(r.outcomes, outcome{sink: sink, eventType: eventType, failed: err != nil})
}

func TestEmitter_Emit(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	rec := &mockRecorder{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := NewEmitter([]Sink{sink}, WithRecorder(rec), WithClock(func() time.Time { return fixed }), WithTimeout(time.Second))

	def := &model.Definition{Resource: model.Resource{ID: "d1", Version: 2, Description: "order placed"}}
	e.Emit(context.Background(), TypeCreated, "/registry/groups/g1/definitions/d1", def)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, SpecVersion, ev.SpecVersion)
	assert.Equal(t, TypeCreated, ev.Type)
	assert.Equal(t, "/registry/groups/g1/definitions/d1", ev.Source)
	assert.Equal(t, "d1", ev.Subject)
	assert.Equal(t, fixed, ev.Time)
	assert.Equal(t, "application/json", ev.DataContentType)

	var data map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "order placed", data["description"])

	deadline, ok := sink.ctxs[0].Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)

	assert.Equal(t, []outcome{{sink: "rec", eventType: TypeCreated}}, rec.outcomes)
}

func TestEmitter_FailuresAreSwallowed(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.New("broker down")}
	healthy := &recordingSink{name: "ok"}
	rec := &mockRecorder{}
	e := NewEmitter([]Sink{failing, healthy}, WithRecorder(rec))

	e.Emit(context.Background(), TypeDeleted, "/registry/groups/g1", &model.DefinitionGroup{Resource: model.Resource{ID: "g1"}})

	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, []outcome{
		{sink: "broken", eventType: TypeDeleted, failed: true},
		{sink: "ok", eventType: TypeDeleted},
	}, rec.outcomes)
}

func TestEmitter_NilAndEmpty(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), TypeCreated, "/x", &model.Schema{})
	})
	assert.Nil(t, e.Sinks())
	assert.NoError(t, e.Close())

	e = NewEmitter(nil)
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), TypeCreated, "/x", &model.Schema{})
	})
}

func TestEmitter_Close(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("close failed")}
	e := NewEmitter([]Sink{a, b})

	err := e.Close()
	assert.EqualError(t, err, "close failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "registry-events")
	ev := &Event{
		ID:          "e1",
		SpecVersion: SpecVersion,
		Type:        TypeChanged,
		Source:      "/registry/schemagroups/sg1",
		Subject:     "sg1",
		Time:        time.Now().UTC(),
		Data:        json.RawMessage(`{"id":"sg1"}`),
	}

	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "sg1", string(msg.Key))
	headers := headerMap(msg.Headers)
	assert.Equal(t, "e1", headers["ce_id"])
	assert.Equal(t, TypeChanged, headers["ce_type"])
	assert.Equal(t, "/registry/schemagroups/sg1", headers["ce_source"])
	assert.Equal(t, "1.0", headers["ce_specversion"])
	assert.Equal(t, cloudEventsContentType, headers["content-type"])

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e1", decoded.ID)
	assert.JSONEq(t, `{"id":"sg1"}`, string(decoded.Data))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	sink := newKafkaSink(w, "registry-events")

	err := sink.Publish(context.Background(), &Event{ID: "e1", Type: TypeCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry-events")
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSinkWithLogger(zerolog.New(&buf))

	require.NoError(t, sink.Publish(context.Background(), &Event{ID: "e1", Type: TypeCreated, Source: "/registry/endpoints/ep1", Subject: "ep1"}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, TypeCreated, line["type"])
	assert.Equal(t, "ep1", line["subject"])
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Close())
}
