// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"time"

	"subwatch-service/internal/recurrence"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Subscription is one tracked recurring payment. IDs are ULIDs assigned at
// creation. Version backs the repository's compare-and-swap updates; every
// successful write increments it.
type Subscription struct {
	ID      string `json:"id" db:"id"`
	OwnerID int64  `json:"owner_id" db:"owner_id"`
	Name    string `json:"name" db:"name"`

	Amount   float64 `json:"amount" db:"amount"`
	Currency string  `json:"currency" db:"currency"`

	PeriodUnit  recurrence.Unit `json:"period_unit" db:"period_unit"`
	PeriodCount int             `json:"period_count" db:"period_count"`

	// AnchorDate is the most recent confirmed payment date (or the original
	// start); Timezone qualifies it. NextDueDate is derived and cached.
	AnchorDate  time.Time `json:"anchor_date" db:"anchor_date"`
	Timezone    string    `json:"timezone" db:"timezone"`
	NextDueDate time.Time `json:"next_due_date" db:"next_due_date"`

	// LastReminderSentFor holds the due-date instance already reminded
	// about; it never goes backwards for a given subscription.
	LastReminderSentFor sql.NullTime `json:"last_reminder_sent_for,omitempty" db:"last_reminder_sent_for"`

	// DispatchFailures counts consecutive failed reminder dispatches for
	// the current due-date instance. Reset on success and on user edits.
	DispatchFailures int `json:"dispatch_failures" db:"dispatch_failures"`

	Active  bool  `json:"active" db:"active"`
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Schedule builds the recurrence rule for this subscription.
func (s *Subscription) Schedule() (recurrence.Schedule, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return recurrence.New(s.AnchorDate, s.PeriodUnit, s.PeriodCount, loc)
}

// MonthlyEquivalent converts the subscription cost to an approximate
// per-month figure for spend summaries.
func (s *Subscription) MonthlyEquivalent() float64 {
	if s.PeriodCount < 1 {
		return 0
	}
	switch s.PeriodUnit {
	case recurrence.UnitDaily:
		return s.Amount * 30 / float64(s.PeriodCount)
	case recurrence.UnitWeekly:
		return s.Amount * 30 / 7 / float64(s.PeriodCount)
	case recurrence.UnitMonthly:
		return s.Amount / float64(s.PeriodCount)
	case recurrence.UnitYearly:
		return s.Amount / 12 / float64(s.PeriodCount)
	}
	return 0
}

// ReminderPending reports whether the current due-date instance still needs
// a reminder.
func (s *Subscription) ReminderPending() bool {
	if !s.Active {
		return false
	}
	return !s.LastReminderSentFor.Valid || !s.LastReminderSentFor.Time.Equal(s.NextDueDate)
}
