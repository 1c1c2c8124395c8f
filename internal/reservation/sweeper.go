package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	sweepLockKey = "sweep:lock"
	sweepLockTTL = 2 * time.Minute
)

type SweepReport struct {
	Skipped         bool
	Purged          int64
	Completed       int
	AccountsDeleted int
	Canceled        int
	Failed          int
}

// Sweeper finalizes lapsed holds, completes started bookings and retires
// accounts whose deletion is due. It is safe to run from several processes;
// the locker keeps it to one sweep at a time.
type Sweeper struct {
	svc    *Service
	locker Locker
	logger observability.Logger
	minGap time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewSweeper(svc *Service, locker Locker, logger observability.Logger, minGap time.Duration) *Sweeper {
	return &Sweeper{svc: svc, locker: locker, logger: logger, minGap: minGap}
}

func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}

// SweepIfStale sweeps unless this process already did so within minGap.
func (w *Sweeper) SweepIfStale(ctx context.Context) {
	w.mu.Lock()
	now := w.svc.now()
	if !w.last.IsZero() && now.Sub(w.last) < w.minGap {
		w.mu.Unlock()
		return
	}
	w.last = now
	w.mu.Unlock()

	if _, err := w.Sweep(ctx); err != nil {
		w.logger.WithError(err).Warn("on-request sweep failed")
	}
}

func (w *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "reservation.Sweep")
	defer span.End()

	var report SweepReport
	if w.locker != nil {
		unlock, ok, err := w.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			return report, errors.Wrap(err, "acquire sweep lock")
		}
		if !ok {
			report.Skipped = true
			return report, nil
		}
		defer unlock()
	}

	start := time.Now()
	defer func() { observability.SweepDuration.Observe(time.Since(start).Seconds()) }()

	svc := w.svc
	now := svc.now()

	var (
		expired   []string
		orphaned  []string
		completed []domain.Reservation

		mu       sync.Mutex
		phaseErr error
	)
	// A failing phase is recorded and the rest of the sweep carries on, so
	// whatever was collected is still released.
	fail := func(err error) {
		mu.Lock()
		phaseErr = errors.CombineErrors(phaseErr, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		err := svc.store.InTx(ctx, func(q Queries) error {
			var err error
			report.Purged, err = q.PurgeVerifications(ctx, now.Add(-svc.policy.VerificationGrace))
			return err
		})
		if err != nil {
			fail(errors.Wrap(err, "purge verifications"))
		}
		return nil
	})
	g.Go(func() error {
		err := svc.store.InTx(ctx, func(q Queries) error {
			var err error
			expired, err = q.ExpiredReservations(ctx, now)
			return err
		})
		if err != nil {
			fail(errors.Wrap(err, "collect expired reservations"))
		}
		return nil
	})
	// Started bookings are completed before accounts are retired so a
	// retired customer's past showtime ends Completed, not Canceled.
	g.Go(func() error {
		err := svc.store.InTx(ctx, func(q Queries) error {
			var err error
			completed, err = q.CompleteStartedBookings(ctx, now)
			if err != nil {
				return err
			}
			for i := range completed {
				e := domain.NewLifecycleEvent(domain.EventCompleted, &completed[i], completed[i].Total(), now)
				if err := q.AppendEvent(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			completed = nil
			fail(errors.Wrap(err, "complete started bookings"))
		}

		var deleted []int64
		err = svc.store.InTx(ctx, func(q Queries) error {
			var err error
			deleted, err = q.DueAccountDeletions(ctx, now)
			return err
		})
		if err != nil {
			fail(errors.Wrap(err, "retire accounts"))
		}
		report.AccountsDeleted = len(deleted)

		err = svc.store.InTx(ctx, func(q Queries) error {
			var err error
			orphaned, err = q.OrphanedReservations(ctx)
			return err
		})
		if err != nil {
			fail(errors.Wrap(err, "collect orphaned reservations"))
		}
		return nil
	})
	_ = g.Wait()

	report.Completed = len(completed)
	for _, r := range completed {
		svc.record(ctx, domain.EventCompleted, r, map[string]any{"origin": originSweeper})
	}

	ids := union(expired, orphaned)
	bulk := svc.BulkCancel(ctx, ids)
	report.Canceled, report.Failed = bulk.Canceled, bulk.Failed

	observability.SweptReservations.WithLabelValues("canceled").Add(float64(report.Canceled))
	observability.SweptReservations.WithLabelValues("completed").Add(float64(report.Completed))
	observability.SweptReservations.WithLabelValues("failed").Add(float64(report.Failed))
	span.SetAttributes(
		attribute.Int("sweep.canceled", report.Canceled),
		attribute.Int("sweep.completed", report.Completed),
		attribute.Int("sweep.failed", report.Failed),
	)
	if report.Canceled+report.Completed+report.AccountsDeleted > 0 || report.Failed > 0 {
		w.logger.WithFields(map[string]interface{}{
			"purged":           report.Purged,
			"canceled":         report.Canceled,
			"completed":        report.Completed,
			"accounts_deleted": report.AccountsDeleted,
			"failed":           report.Failed,
		}).Info("sweep finished")
	}
	if phaseErr != nil {
		span.RecordError(phaseErr)
		return report, phaseErr
	}
	return report, nil
}

func union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
