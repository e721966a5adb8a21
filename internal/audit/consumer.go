package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Handler processes one audit event read back from a category topic.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Router dispatches records to the handler registered for their topic.
type Router struct {
	handlers map[string]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(topic string, h Handler) {
	r.handlers[topic] = h
}

// HandleRecord decodes rec and routes it. Undecodable records and records
// without a handler are logged and skipped so they are not redelivered.
func (r *Router) HandleRecord(ctx context.Context, rec *kgo.Record) error {
	h, ok := r.handlers[rec.Topic]
	if !ok {
		h = r.fallback
	}
	if h == nil {
		r.logger.WarnContext(ctx, "no handler for audit topic", "topic", rec.Topic)
		return nil
	}

	var e Event
	if err := json.Unmarshal(rec.Value, &e); err != nil {
		r.logger.WarnContext(ctx, "skipping malformed audit record",
			"topic", rec.Topic,
			"offset", rec.Offset,
			"error", err,
		)
		return nil
	}
	return h.Handle(ctx, e)
}

// Consume polls client and routes every record until ctx is done.
func Consume(ctx context.Context, client *kgo.Client, r *Router) error {
	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if fetches.IsClientClosed() {
			return nil
		}
		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				fetchErr = fmt.Errorf("fetch %s/%d: %w", topic, partition, err)
			}
		})
		if fetchErr != nil {
			return fetchErr
		}

		var handleErr error
		fetches.EachRecord(func(rec *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = r.HandleRecord(ctx, rec)
		})
		if handleErr != nil {
			return handleErr
		}
	}
}

// NewConsumerClient subscribes to the given category topics.
func NewConsumerClient(brokers []string, topicPrefix string, fromStart bool, categories ...EventCategory) (*kgo.Client, error) {
	topics := make([]string, 0, len(categories))
	for _, c := range categories {
		topics = append(topics, topicPrefix+"."+string(c))
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("idhub-audit-tail"),
		kgo.ConsumeTopics(topics...),
	}
	if fromStart {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

// JSONLines writes each event as one JSON document per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (j *JSONLines) Handle(_ context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(e)
}

// SecurityAlerts logs security events at warn level before passing them on.
type SecurityAlerts struct {
	next   Handler
	logger *slog.Logger
}

func NewSecurityAlerts(next Handler, logger *slog.Logger) *SecurityAlerts {
	return &SecurityAlerts{next: next, logger: logger}
}

func (s *SecurityAlerts) Handle(ctx context.Context, e Event) error {
	s.logger.WarnContext(ctx, "security audit event",
		"action", e.Action,
		"user_id", e.UserID,
		"client_id", e.ClientID,
		"reason", e.Reason,
		"ip", e.IP,
	)
	if s.next == nil {
		return nil
	}
	return s.next.Handle(ctx, e)
}
