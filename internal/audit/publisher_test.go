package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"idhub/pkg/requestcontext"
)

func TestPublisher_SyncModeEnrichesEvent(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-9")
	ctx = requestcontext.WithClientMetadata(ctx, "10.1.1.1",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	ctx = requestcontext.WithTime(ctx, fixed)

	require.NoError(t, pub.Emit(ctx, Event{Action: EventLoginFailed, UserID: "u1"}))

	events := sink.ListByUser("u1")
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, CategorySecurity, got.Category)
	assert.Equal(t, "req-9", got.RequestID)
	assert.Equal(t, "10.1.1.1", got.IP)
	assert.Equal(t, fixed, got.Timestamp)
	assert.Contains(t, got.Device, "Chrome")
}

func TestPublisher_AsyncModeDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(10))

	for range 5 {
		require.NoError(t, pub.Emit(context.Background(), Event{Action: EventTokenIssued, UserID: "u2"}))
	}
	pub.Close()
	pub.Close()

	assert.Len(t, sink.ListByUser("u2"), 5)
	assert.Zero(t, pub.Dropped())
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var pub *Publisher
	assert.NoError(t, pub.Emit(context.Background(), Event{Action: EventUserCreated}))
	pub.Close()
}

func TestEventCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventUserCreated.Category())
	assert.Equal(t, CategorySecurity, EventTokenDenied.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_else").Category())
}

func TestDeviceSummary(t *testing.T) {
	assert.Empty(t, DeviceSummary(""))
	assert.Contains(t, DeviceSummary("Googlebot/2.1 (+http://www.google.com/bot.html)"), "bot")

	iphone := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	assert.Contains(t, DeviceSummary(iphone), "(mobile)")
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	var results kgo.ProduceResults
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestKafkaSink(t *testing.T) {
	t.Run("routes by category and keys by user", func(t *testing.T) {
		producer := &fakeProducer{}
		sink := NewKafkaSink(producer, "idhub.audit")

		err := sink.Append(context.Background(), Event{Action: EventUserCreated, Category: CategoryCompliance, UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, producer.records, 1)
		assert.Equal(t, "idhub.audit.compliance", producer.records[0].Topic)
		assert.Equal(t, []byte("u1"), producer.records[0].Key)
		assert.Contains(t, string(producer.records[0].Value), `"action":"user_created"`)
	})

	t.Run("propagates produce errors", func(t *testing.T) {
		sink := NewKafkaSink(&fakeProducer{err: errors.New("broker down")}, "idhub.audit")
		err := sink.Append(context.Background(), Event{Action: EventTokenIssued, Category: CategoryOperations})
		require.Error(t, err)
	})
}
