// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"subwatch-service/internal/domain/subscription"
	xerrors "subwatch-service/internal/pkg/errors"
)

const subscriptionColumns = `
	id, owner_id, name, amount, currency, period_unit, period_count,
	anchor_date, timezone, next_due_date, last_reminder_sent_for,
	dispatch_failures, active, version, created_at, updated_at`

// SubscriptionRepository is the CRUD facade over the subscriptions table.
// All writes go through optimistic concurrency control keyed on the row
// version; data-model invariants are checked before anything is persisted.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a new subscription at version 1.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := validateInvariants(sub); err != nil {
		return err
	}

	query := `
		INSERT INTO subscriptions (
			id, owner_id, name, amount, currency, period_unit, period_count,
			anchor_date, timezone, next_due_date, last_reminder_sent_for,
			dispatch_failures, active, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRow(
		ctx, query,
		sub.ID, sub.OwnerID, sub.Name, sub.Amount, sub.Currency,
		sub.PeriodUnit, sub.PeriodCount, sub.AnchorDate, sub.Timezone,
		sub.NextDueDate, sub.LastReminderSentFor, sub.DispatchFailures, sub.Active,
	).Scan(&sub.Version, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// FindByID retrieves a subscription regardless of active flag.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByOwnerAndName resolves an active subscription by its label,
// case-insensitively. Used by delete intents that name the service.
func (r *SubscriptionRepository) FindByOwnerAndName(ctx context.Context, ownerID int64, name string) (*subscription.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE owner_id = $1 AND lower(name) = lower($2) AND active
		ORDER BY created_at
		LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, ownerID, strings.TrimSpace(name)))
}

// ListByOwner returns an owner's subscriptions, soonest due first.
func (r *SubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]*subscription.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE owner_id = $1 AND ($2::bool = false OR active)
		ORDER BY next_due_date ASC`
	rows, err := r.db.Query(ctx, query, ownerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListDue returns reminder candidates: active subscriptions due inside the
// lead window whose current due-date instance has not been reminded about
// and whose dispatch retry budget is not exhausted. Ascending due order is
// the per-tick processing order.
func (r *SubscriptionRepository) ListDue(ctx context.Context, dueBefore time.Time, maxFailures int) ([]*subscription.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE active
		  AND next_due_date <= $1
		  AND (last_reminder_sent_for IS NULL OR last_reminder_sent_for <> next_due_date)
		  AND dispatch_failures < $2
		ORDER BY next_due_date ASC`
	rows, err := r.db.Query(ctx, query, dueBefore, maxFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// UpdateCAS writes the subscription back conditioned on the version it was
// read at. On success the in-memory version is bumped to match the row. A
// concurrent writer having won the race yields ErrConcurrentModification;
// the caller re-reads and retries or gives up.
func (r *SubscriptionRepository) UpdateCAS(ctx context.Context, sub *subscription.Subscription) error {
	if err := validateInvariants(sub); err != nil {
		return err
	}

	query := `
		UPDATE subscriptions
		SET name = $1, amount = $2, currency = $3, period_unit = $4,
		    period_count = $5, anchor_date = $6, timezone = $7,
		    next_due_date = $8, last_reminder_sent_for = $9,
		    dispatch_failures = $10, active = $11,
		    version = version + 1, updated_at = now()
		WHERE id = $12 AND version = $13
	`
	tag, err := r.db.Exec(
		ctx, query,
		sub.Name, sub.Amount, sub.Currency, sub.PeriodUnit, sub.PeriodCount,
		sub.AnchorDate, sub.Timezone, sub.NextDueDate, sub.LastReminderSentFor,
		sub.DispatchFailures, sub.Active, sub.ID, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, sub.ID); errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrNotFound
		}
		return xerrors.ErrConcurrentModification
	}
	sub.Version++
	return nil
}

// UpdateWithRetry re-reads, applies the mutator and CAS-writes, retrying a
// bounded number of times on version conflicts. This is the path for
// user-initiated edits that may race with the reminder scheduler.
func (r *SubscriptionRepository) UpdateWithRetry(ctx context.Context, id string, attempts int, mutate func(*subscription.Subscription) error) (*subscription.Subscription, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		sub, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(sub); err != nil {
			return nil, err
		}
		err = r.UpdateCAS(ctx, sub)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, xerrors.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update not applied after %d attempts: %w", attempts, lastErr)
}

// SoftDelete marks the subscription inactive. Terminal: the scheduler
// never touches inactive rows again.
func (r *SubscriptionRepository) SoftDelete(ctx context.Context, id string, version int64) error {
	query := `
		UPDATE subscriptions
		SET active = false, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND active
	`
	tag, err := r.db.Exec(ctx, query, id, version)
	if err != nil {
		return fmt.Errorf("failed to soft delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrNotFound
		}
		return xerrors.ErrConcurrentModification
	}
	return nil
}

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Name, &s.Amount, &s.Currency,
		&s.PeriodUnit, &s.PeriodCount, &s.AnchorDate, &s.Timezone,
		&s.NextDueDate, &s.LastReminderSentFor, &s.DispatchFailures,
		&s.Active, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

func scanAll(rows pgx.Rows) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		err := rows.Scan(
			&s.ID, &s.OwnerID, &s.Name, &s.Amount, &s.Currency,
			&s.PeriodUnit, &s.PeriodCount, &s.AnchorDate, &s.Timezone,
			&s.NextDueDate, &s.LastReminderSentFor, &s.DispatchFailures,
			&s.Active, &s.Version, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// validateInvariants rejects writes that would corrupt the data model:
// empty name, non-positive amount or period, a cached next_due_date that
// disagrees with the recurrence rule, or a reminder marker for a date the
// rule never produces.
func validateInvariants(sub *subscription.Subscription) error {
	if strings.TrimSpace(sub.Name) == "" {
		return fmt.Errorf("%w: empty name", xerrors.ErrInvariantViolation)
	}
	if sub.Amount <= 0 {
		return fmt.Errorf("%w: amount %.2f not positive", xerrors.ErrInvariantViolation, sub.Amount)
	}
	if sub.Currency == "" {
		return fmt.Errorf("%w: empty currency", xerrors.ErrInvariantViolation)
	}
	sched, err := sub.Schedule()
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInvariantViolation, err)
	}
	if want := sched.NextAfter(sub.AnchorDate); !sub.NextDueDate.Equal(want) {
		return fmt.Errorf("%w: next_due_date %s does not match recurrence (want %s)",
			xerrors.ErrInvariantViolation,
			sub.NextDueDate.Format(time.RFC3339), want.Format(time.RFC3339))
	}
	return nil
}
