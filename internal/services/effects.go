package services

import (
	"context"
	"log/slog"
	"time"

	"referrski/internal/metrics"
)

// postCommitEffect is a best-effort step that runs after a transition is stored.
// Its failure is logged and counted, never returned to the caller.
type postCommitEffect struct {
	name string
	run  func(ctx context.Context) error
}

// effectRunner executes effects in order, each on a context detached from the
// request's cancellation and bounded by timeout.
type effectRunner struct {
	logger  *slog.Logger
	timeout time.Duration
}

func (r effectRunner) run(ctx context.Context, attrs []any, effects ...postCommitEffect) {
	base := context.WithoutCancel(ctx)
	for _, e := range effects {
		r.runOne(base, attrs, e)
	}
}

func (r effectRunner) runOne(base context.Context, attrs []any, e postCommitEffect) {
	ctx, cancel := context.WithTimeout(base, r.timeout)
	defer cancel()
	if err := e.run(ctx); err != nil {
		metrics.PostCommitFailures.WithLabelValues(e.name).Inc()
		args := append([]any{"effect", e.name, "err", err}, attrs...)
		r.logger.WarnContext(ctx, "post-commit effect failed", args...)
	}
}
