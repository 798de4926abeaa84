// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "subwatch-service/internal/domain/subscription"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/recurrence"
)

// Store is the slice of repository behavior this service needs.
type Store interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	FindByOwnerAndName(ctx context.Context, ownerID int64, name string) (*domain.Subscription, error)
	ListByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]*domain.Subscription, error)
	UpdateWithRetry(ctx context.Context, id string, attempts int, mutate func(*domain.Subscription) error) (*domain.Subscription, error)
	SoftDelete(ctx context.Context, id string, version int64) error
}

// SubscriptionService owns user-facing subscription operations. The
// repository's compare-and-swap is the only serialization point; delete
// retries once on a lost race.
type SubscriptionService struct {
	store     Store
	validate  *validator.Validate
	defaultTZ string
	now       func() time.Time
	logger    *zap.Logger
}

func NewSubscriptionService(store Store, defaultTZ string, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:     store,
		validate:  validator.New(),
		defaultTZ: defaultTZ,
		now:       time.Now,
		logger:    logger,
	}
}

// Add creates a subscription from a validated intent. The anchor defaults
// to the moment of creation in the owner's time zone; the cached next due
// date is derived before the write so the repository invariant holds.
// Re-adding an existing name is treated as a user edit: price and period
// are overwritten, the schedule restarts from the new anchor, and the
// reminder bookkeeping resets.
func (s *SubscriptionService) Add(ctx context.Context, in domain.CreateInput) (*domain.Subscription, error) {
	if in.Timezone == "" {
		in.Timezone = s.defaultTZ
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrValidation, err)
	}

	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", xerrors.ErrValidation, in.Timezone)
	}

	anchor := in.AnchorDate
	if anchor.IsZero() {
		anchor = s.now().In(loc)
	}

	sched, err := recurrence.New(anchor, in.PeriodUnit, in.PeriodCount, loc)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindByOwnerAndName(ctx, in.OwnerID, in.Name)
	if err == nil {
		updated, err := s.store.UpdateWithRetry(ctx, existing.ID, 2, func(sub *domain.Subscription) error {
			sub.Amount = in.Amount
			sub.Currency = in.Currency
			sub.PeriodUnit = in.PeriodUnit
			sub.PeriodCount = in.PeriodCount
			sub.AnchorDate = anchor
			sub.Timezone = in.Timezone
			sub.NextDueDate = sched.NextAfter(anchor)
			sub.LastReminderSentFor = sql.NullTime{}
			sub.DispatchFailures = 0
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("subscription updated",
			zap.String("subscription_id", updated.ID),
			zap.Int64("owner_id", updated.OwnerID),
			zap.String("name", updated.Name),
			zap.Time("next_due", updated.NextDueDate),
		)
		return updated, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:          ulid.Make().String(),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Amount:      in.Amount,
		Currency:    in.Currency,
		PeriodUnit:  in.PeriodUnit,
		PeriodCount: in.PeriodCount,
		AnchorDate:  anchor,
		Timezone:    in.Timezone,
		NextDueDate: sched.NextAfter(anchor),
		Active:      true,
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.Int64("owner_id", sub.OwnerID),
		zap.String("name", sub.Name),
		zap.Time("next_due", sub.NextDueDate),
	)
	return sub, nil
}

// List returns an owner's active subscriptions, soonest due first.
func (s *SubscriptionService) List(ctx context.Context, ownerID int64) ([]*domain.Subscription, error) {
	return s.store.ListByOwner(ctx, ownerID, true)
}

// DeleteByName soft-deletes the owner's subscription with the given label.
// An unknown name is a user error, not an internal one. A version conflict
// with the scheduler is retried once with fresh state.
func (s *SubscriptionService) DeleteByName(ctx context.Context, ownerID int64, name string) (*domain.Subscription, error) {
	for attempt := 0; attempt < 2; attempt++ {
		sub, err := s.store.FindByOwnerAndName(ctx, ownerID, name)
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no subscription named %q", xerrors.ErrValidation, name)
		}
		if err != nil {
			return nil, err
		}

		err = s.store.SoftDelete(ctx, sub.ID, sub.Version)
		if err == nil {
			s.logger.Info("subscription deleted",
				zap.String("subscription_id", sub.ID),
				zap.Int64("owner_id", ownerID),
				zap.String("name", sub.Name),
			)
			sub.Active = false
			return sub, nil
		}
		if !errors.Is(err, xerrors.ErrConcurrentModification) {
			return nil, err
		}
	}
	return nil, xerrors.ErrConcurrentModification
}

// Stats aggregates an owner's active subscriptions into per-currency
// monthly-equivalent totals. No currency conversion happens.
func (s *SubscriptionService) Stats(ctx context.Context, ownerID int64) (*domain.OwnerStats, error) {
	subs, err := s.store.ListByOwner(ctx, ownerID, true)
	if err != nil {
		return nil, err
	}

	stats := &domain.OwnerStats{
		OwnerID:       ownerID,
		ActiveCount:   len(subs),
		MonthlyTotals: make(map[string]float64),
	}
	for _, sub := range subs {
		stats.MonthlyTotals[sub.Currency] += sub.MonthlyEquivalent()
		if stats.NextDue == nil || sub.NextDueDate.Before(stats.NextDue.NextDueDate) {
			stats.NextDue = sub
		}
	}
	return stats, nil
}

// Upcoming previews the next few due dates of a subscription.
func (s *SubscriptionService) Upcoming(sub *domain.Subscription, limit int) ([]time.Time, error) {
	sched, err := sub.Schedule()
	if err != nil {
		return nil, err
	}
	return sched.Upcoming(s.now(), limit), nil
}
