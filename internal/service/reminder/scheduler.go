// internal/service/reminder/scheduler.go
package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"subwatch-service/internal/domain/alert"
	domain "subwatch-service/internal/domain/subscription"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/recurrence"
)

// Store is the slice of repository behavior the scheduler needs. Every
// state transition goes through the compare-and-swap update, which is what
// makes ticks idempotent and multiple scheduler instances safe: at most
// one writer wins a given due-date instance.
type Store interface {
	ListDue(ctx context.Context, dueBefore time.Time, maxFailures int) ([]*domain.Subscription, error)
	UpdateCAS(ctx context.Context, sub *domain.Subscription) error
}

// Dispatcher is the chat transport that delivers a reminder:
// fire-and-forget-with-acknowledgment. A nil error is the ack.
type Dispatcher interface {
	Send(ctx context.Context, ownerID int64, text string) error
}

// AlertSink receives operator escalations for subscriptions whose dispatch
// retry budget is exhausted.
type AlertSink interface {
	Publish(event alert.Event)
}

type Config struct {
	TickInterval time.Duration
	LeadTime     time.Duration
	MaxAttempts  int
	Workers      int
}

// Scheduler drives the reminder loop: one recurring ticker, candidates
// processed by a bounded worker pool inside each tick. The lifecycle is
// explicit (Start/Stop) and RunTick is exported so tests drive ticks
// manually without the timer.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	alerts     AlertSink
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewScheduler(store Store, dispatcher Dispatcher, alerts AlertSink, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		alerts:     alerts,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.loop()
		s.logger.Info("reminder scheduler started",
			zap.Duration("tick_interval", s.cfg.TickInterval),
			zap.Duration("lead_time", s.cfg.LeadTime),
		)
	})
}

// Stop halts the ticker and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.logger.Info("reminder scheduler stopped")
	})
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickInterval)
			if err := s.RunTick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// RunTick scans for due candidates and processes them. Re-running a tick
// against unchanged state dispatches nothing new: candidates whose current
// due-date instance was already reminded about never come back from the
// store, and the CAS rejects stale writers.
func (s *Scheduler) RunTick(ctx context.Context) error {
	now := s.now()
	candidates, err := s.store.ListDue(ctx, now.Add(s.cfg.LeadTime), s.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to scan due subscriptions: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Candidates arrive in ascending next_due_date order and are handed to
	// the pool in that order. Each candidate's transition is independent.
	jobs := make(chan *domain.Subscription)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				s.processCandidate(ctx, now, sub)
			}
		}()
	}
	for _, sub := range candidates {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	s.logger.Info("scheduler tick complete", zap.Int("candidates", len(candidates)))
	return nil
}

func (s *Scheduler) processCandidate(ctx context.Context, now time.Time, sub *domain.Subscription) {
	if !sub.ReminderPending() {
		return
	}

	if err := s.dispatcher.Send(ctx, sub.OwnerID, FormatReminder(sub)); err != nil {
		s.handleDispatchFailure(ctx, sub, err)
		return
	}
	s.handleDispatchSuccess(ctx, now, sub)
}

// handleDispatchSuccess records the sent reminder and, when the due date
// has already elapsed, rolls the anchor forward to the elapsed instance
// and recomputes the next due date from the rolled anchor. The repository
// holds next_due_date to exactly the first occurrence after the anchor,
// so the schedule must be rebuilt after the roll, not before: a clamped
// anchor (Jan 31 paid on Feb 28) now advances to Mar 28, the same date
// the stored anchor reproduces. A lost CAS means another instance
// completed this candidate first; the reminder was still sent at most
// once per winner.
func (s *Scheduler) handleDispatchSuccess(ctx context.Context, now time.Time, sub *domain.Subscription) {
	dueInstance := sub.NextDueDate

	sub.LastReminderSentFor = sql.NullTime{Time: dueInstance, Valid: true}
	sub.DispatchFailures = 0

	if !dueInstance.After(now) {
		sub.AnchorDate = dueInstance
		sched, err := sub.Schedule()
		if err != nil {
			s.logger.Error("invalid recurrence on stored subscription",
				zap.String("subscription_id", sub.ID), zap.Error(err))
			return
		}
		sub.NextDueDate = sched.NextAfter(dueInstance)
	}

	err := s.store.UpdateCAS(ctx, sub)
	switch {
	case err == nil:
		s.logger.Info("reminder dispatched",
			zap.String("subscription_id", sub.ID),
			zap.Int64("owner_id", sub.OwnerID),
			zap.Time("due_instance", dueInstance),
			zap.Time("next_due", sub.NextDueDate),
		)
	case errors.Is(err, xerrors.ErrConcurrentModification):
		s.logger.Warn("lost reminder race to another writer",
			zap.String("subscription_id", sub.ID))
	case errors.Is(err, xerrors.ErrInvariantViolation):
		// Programming or data defect: abort loudly, never swallow.
		s.logger.Error("invariant violation advancing subscription",
			zap.String("subscription_id", sub.ID), zap.Error(err))
	default:
		s.logger.Error("failed to record dispatched reminder",
			zap.String("subscription_id", sub.ID), zap.Error(err))
	}
}

// handleDispatchFailure leaves the due-date state untouched so the
// candidate is retried next tick, bumping only the failure counter. When
// the retry budget is exhausted the subscription is escalated to the
// operator channel and drops out of candidate scans until something
// resets the counter.
func (s *Scheduler) handleDispatchFailure(ctx context.Context, sub *domain.Subscription, dispatchErr error) {
	sub.DispatchFailures++

	s.logger.Warn("reminder dispatch failed",
		zap.String("subscription_id", sub.ID),
		zap.Int64("owner_id", sub.OwnerID),
		zap.Int("failures", sub.DispatchFailures),
		zap.Error(dispatchErr),
	)

	if err := s.store.UpdateCAS(ctx, sub); err != nil {
		if !errors.Is(err, xerrors.ErrConcurrentModification) {
			s.logger.Error("failed to record dispatch failure",
				zap.String("subscription_id", sub.ID), zap.Error(err))
		}
		return
	}

	if sub.DispatchFailures >= s.cfg.MaxAttempts && s.alerts != nil {
		s.alerts.Publish(alert.Event{
			Severity:       alert.SeverityCritical,
			SubscriptionID: sub.ID,
			OwnerID:        sub.OwnerID,
			Reason:         fmt.Sprintf("%v: %v", xerrors.ErrDispatchFailure, dispatchErr),
			Attempts:       sub.DispatchFailures,
			OccurredAt:     s.now(),
		})
	}
}

// FormatReminder renders the renewal notice sent to the user.
func FormatReminder(sub *domain.Subscription) string {
	period := string(sub.PeriodUnit)
	if sub.PeriodCount > 1 {
		period = fmt.Sprintf("every %d %ss", sub.PeriodCount, unitNoun(sub.PeriodUnit))
	}
	return fmt.Sprintf(
		"🔔 <b>Upcoming Subscription Renewal</b>\n\n"+
			"<b>%s</b>\n"+
			"Amount: %.2f %s\n"+
			"Next billing date: %s\n"+
			"Billing period: %s",
		sub.Name, sub.Amount, sub.Currency,
		sub.NextDueDate.Format("2006-01-02"), period,
	)
}

func unitNoun(unit recurrence.Unit) string {
	switch unit {
	case recurrence.UnitDaily:
		return "day"
	case recurrence.UnitWeekly:
		return "week"
	case recurrence.UnitMonthly:
		return "month"
	case recurrence.UnitYearly:
		return "year"
	}
	return string(unit)
}
