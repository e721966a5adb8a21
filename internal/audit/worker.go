package audit

import (
	"context"
	"log/slog"
	"time"
)

// worker drains the publisher buffer into the sink until the inbox closes.
type worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func newWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *worker {
	return &worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *worker) run() {
	for event := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.sink.Append(ctx, event); err != nil {
			w.logger.Error("audit sink append failed", "action", event.Action, "error", err)
		}
		cancel()
	}
}
