// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Structured logging wired through the metrics registry: every record
// logged bumps a per-level counter, so log volume shows up next to the
// rest of a server's control-surface metrics without a separate
// log-scraping pipeline.

package control

import (
	"context"
	"log/slog"
	"os"
)

// countingHandler wraps a slog.Handler, incrementing
// "log.<level>_records" in a MetricsRegistry for every record handled.
type countingHandler struct {
	slog.Handler
	metrics *MetricsRegistry
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.metrics.Incr("log."+r.Level.String()+"_records", 1)
	return h.Handler.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{Handler: h.Handler.WithAttrs(attrs), metrics: h.metrics}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{Handler: h.Handler.WithGroup(name), metrics: h.metrics}
}

// NewLogger returns a JSON slog.Logger that tallies per-level record
// counts into metrics as it logs to stderr.
func NewLogger(metrics *MetricsRegistry) *slog.Logger {
	base := slog.NewJSONHandler(os.Stderr, nil)
	return slog.New(&countingHandler{Handler: base, metrics: metrics})
}
