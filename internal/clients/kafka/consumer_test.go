package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otlpcollectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// fakeReader hands out queued messages, then blocks until the read context ends.
type fakeReader struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		return msg, nil
	}
	if f.err != nil {
		return kafka.Message{}, f.err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func exportMessage(t *testing.T, offset int64, spanCount int) kafka.Message {
	t.Helper()
	spans := make([]*otlptrace.Span, spanCount)
	for i := range spans {
		spans[i] = &otlptrace.Span{SpanId: []byte{0, 0, 0, 0, 0, 0, 0, byte(i + 1)}}
	}
	req := &otlpcollectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*otlptrace.ResourceSpans{{
			ScopeSpans: []*otlptrace.ScopeSpans{{Spans: spans}},
		}},
	}
	value, err := proto.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{Topic: "traces", Offset: offset, Value: value}
}

func TestDrainStopsWhenIdle(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		exportMessage(t, 0, 2),
		{Topic: "traces", Partition: 1, Offset: 1, Value: []byte{0xff, 0xff, 0xff}},
		exportMessage(t, 2, 1),
	}}
	c := NewConsumerWithReader(reader, "traces", nil)

	result, err := c.Drain(context.Background(), 0, 20*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Messages)
	assert.Len(t, result.ResourceSpans, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(1), result.Failures[0].Offset)
	assert.Contains(t, result.Failures[0].Error(), "partition 1 offset 1")
}

func TestDrainHonoursMaxMessages(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		exportMessage(t, 0, 1),
		exportMessage(t, 1, 1),
		exportMessage(t, 2, 1),
	}}
	c := NewConsumerWithReader(reader, "traces", nil)

	result, err := c.Drain(context.Background(), 2, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Messages)
	assert.Len(t, reader.messages, 1)
}

func TestDrainReturnsReaderErrors(t *testing.T) {
	reader := &fakeReader{err: errors.New("broker unreachable")}
	c := NewConsumerWithReader(reader, "traces", nil)

	_, err := c.Drain(context.Background(), 0, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestDrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumerWithReader(&fakeReader{}, "traces", nil)
	_, err := c.Drain(ctx, 0, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	reader := &fakeReader{}
	c := NewConsumerWithReader(reader, "traces", nil)
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
