package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
)

// Visit log defaults.
const (
	DefaultVisitBuffer   = 1024
	DefaultVisitBatch    = 200
	DefaultVisitInterval = 5 * time.Second
)

// VisitLog buffers request visits in memory and writes them in batches,
// keeping the storage round trip off the request path.
type VisitLog struct {
	repo  repository.VisitRepository
	log   *zap.Logger
	ch    chan model.PageVisit
	batch int
}

// NewVisitLog constructs a log with a buffer of the given size; zero uses the default.
func NewVisitLog(repo repository.VisitRepository, log *zap.Logger, buffer int) *VisitLog {
	if buffer <= 0 {
		buffer = DefaultVisitBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VisitLog{repo: repo, log: log, ch: make(chan model.PageVisit, buffer), batch: DefaultVisitBatch}
}

// Record queues v and reports whether it fit. A full buffer drops the visit.
func (l *VisitLog) Record(v model.PageVisit) bool {
	select {
	case l.ch <- v:
		return true
	default:
		return false
	}
}

// Run flushes queued visits every interval or whenever a batch fills up.
// When ctx is cancelled it writes what is left and returns.
func (l *VisitLog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultVisitInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	buf := make([]model.PageVisit, 0, l.batch)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := l.repo.RecordVisits(ctx, buf); err != nil {
			l.log.Warn("visit log flush failed", zap.Int("dropped", len(buf)), zap.Error(err))
		}
		buf = buf[:0]
	}

	for {
		select {
		case v := <-l.ch:
			buf = append(buf, v)
			if len(buf) >= l.batch {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case v := <-l.ch:
					buf = append(buf, v)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(fctx)
			cancel()
			return
		}
	}
}

// Recent returns the latest stored visits.
func (l *VisitLog) Recent(ctx context.Context, limit int) ([]model.PageVisit, error) {
	return l.repo.RecentVisits(ctx, limit)
}

// Counts returns per-path visit counts since the given time.
func (l *VisitLog) Counts(ctx context.Context, since time.Time, limit int) ([]model.PathCount, error) {
	return l.repo.VisitCounts(ctx, since, limit)
}
