package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/robertarktes/cinema-reservations/internal/reservation")

var errStaleHold = errors.New("caller holds an expired reservation")

type Service struct {
	store    Store
	notifier Notifier
	audit    Auditor
	policy   domain.Policy
	logger   observability.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, notifier Notifier, audit Auditor, policy domain.Policy, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		audit:    audit,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	return s
}

func (s *Service) Policy() domain.Policy { return s.policy }

// Create opens a Pending reservation for the caller. A caller whose only
// open reservation of the kind has already lapsed gets it canceled first.
func (s *Service) Create(ctx context.Context, p domain.Principal, kind domain.Kind, targetID int64) (domain.Reservation, error) {
	if !p.IsCustomer() {
		return domain.Reservation{}, domain.ErrUnauthorized
	}
	if (kind != domain.KindBooking && kind != domain.KindFnbOrder) || targetID <= 0 {
		return domain.Reservation{}, domain.ErrInvalidInput
	}

	for attempt := 0; ; attempt++ {
		var created domain.Reservation
		var stale string
		now := s.now()
		err := s.store.InTx(ctx, func(q Queries) error {
			created, stale = domain.Reservation{}, ""
			open, err := q.OpenReservation(ctx, p.AccountID, kind)
			switch {
			case err == nil:
				if open.IsLive(now) {
					return domain.ErrActiveReservationExists
				}
				stale = open.ID
				return errStaleHold
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}

			cinemaID, err := s.resolveTarget(ctx, q, kind, targetID, now)
			if err != nil {
				return err
			}
			created = domain.NewReservation(kind, p.AccountID, targetID, cinemaID, now, s.policy.PendingTTL)
			return q.InsertReservation(ctx, created)
		})
		if errors.Is(err, errStaleHold) && attempt == 0 {
			events, cerr := s.cancel(ctx, stale, systemActor, originCreate)
			if cerr != nil && !errors.Is(cerr, domain.ErrNotCancelable) && !errors.Is(cerr, domain.ErrNotFound) {
				return domain.Reservation{}, errors.Wrap(cerr, "cancel lapsed reservation")
			}
			s.broadcast(ctx, events...)
			continue
		}
		if errors.Is(err, errStaleHold) {
			err = domain.ErrActiveReservationExists
		}
		if err != nil {
			return domain.Reservation{}, errors.Wrap(err, "create reservation")
		}

		s.record(ctx, "reservation.created", created, map[string]any{"target_id": targetID})
		return created, nil
	}
}

func (s *Service) resolveTarget(ctx context.Context, q Queries, kind domain.Kind, targetID int64, now time.Time) (int64, error) {
	if kind == domain.KindBooking {
		st, err := q.Showtime(ctx, targetID)
		if err != nil {
			return 0, err
		}
		if st.Deleted || !st.StartTime.Add(-s.policy.BookingCutoff).After(now) {
			return 0, domain.ErrNotFound
		}
		return st.CinemaID, nil
	}
	stocked, err := q.CinemaStocked(ctx, targetID)
	if err != nil {
		return 0, err
	}
	if !stocked {
		return 0, domain.ErrNotFound
	}
	return targetID, nil
}

// Get returns the reservation if p may see it. Lapsed holds read as not found.
func (s *Service) Get(ctx context.Context, p domain.Principal, id string) (domain.Reservation, error) {
	var r domain.Reservation
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		r, err = q.Reservation(ctx, id)
		return err
	})
	if err != nil {
		return domain.Reservation{}, errors.Wrap(err, "get reservation")
	}
	if !p.CanManage(&r) {
		return domain.Reservation{}, domain.ErrUnauthorized
	}
	if !r.IsLive(s.now()) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Service) SeatMap(ctx context.Context, showtimeID int64) ([]domain.SeatState, error) {
	var seats []domain.SeatState
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		seats, err = q.SeatMap(ctx, showtimeID)
		return err
	})
	return seats, errors.Wrap(err, "seat map")
}

func (s *Service) StockLevels(ctx context.Context, cinemaID int64) ([]domain.Inventory, error) {
	var levels []domain.Inventory
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		levels, err = q.StockLevels(ctx, cinemaID)
		return err
	})
	return levels, errors.Wrap(err, "stock levels")
}

// broadcast is best effort: the state change is already committed.
func (s *Service) broadcast(ctx context.Context, events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.notifier.Publish(ctx, events...); err != nil {
		observability.BroadcastFailures.Inc()
		s.logger.WithError(err).WithField("events", len(events)).Warn("broadcast failed")
	}
}

func (s *Service) record(ctx context.Context, action string, r domain.Reservation, data map[string]any) {
	if err := s.audit.Record(ctx, action, r, data); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"action":         action,
			"reservation_id": r.ID,
		}).Warn("audit record failed")
	}
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, ...domain.Event) error { return nil }

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, string, domain.Reservation, map[string]any) error { return nil }
