package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"idhub/pkg/requestcontext"
)

// Sink persists or forwards events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher enriches events with request metadata and hands them to a Sink,
// either inline or through a bounded buffer drained by a worker.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	inbox     chan Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer makes Emit non-blocking. When the buffer is full the event
// is dropped and counted.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		w := newWorker(sink, p.inbox, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run()
		}()
	}
	return p
}

// Emit records event. In async mode the sink error is logged by the worker
// instead of returned.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil || p.sink == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Millisecond)
	event.Category = event.Action.Category()
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.Device == "" {
		event.Device = DeviceSummary(requestcontext.UserAgent(ctx))
	}

	if p.inbox == nil {
		return p.sink.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// Dropped reports how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	if p == nil || p.inbox == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.inbox)
		p.wg.Wait()
	})
}
