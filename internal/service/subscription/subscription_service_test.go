package subscription

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "subwatch-service/internal/domain/subscription"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/recurrence"
)

type fakeStore struct {
	mu         sync.Mutex
	created    []*domain.Subscription
	byName     map[string]*domain.Subscription
	deleted    []string
	deleteErrs []error
}

func (f *fakeStore) Create(ctx context.Context, sub *domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeStore) FindByOwnerAndName(ctx context.Context, ownerID int64, name string) (*domain.Subscription, error) {
	if sub, ok := f.byName[name]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]*domain.Subscription, error) {
	var out []*domain.Subscription
	for _, s := range f.byName {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateWithRetry(ctx context.Context, id string, attempts int, mutate func(*domain.Subscription) error) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.byName {
		if sub.ID == id {
			if err := mutate(sub); err != nil {
				return nil, err
			}
			sub.Version++
			cp := *sub
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) SoftDelete(ctx context.Context, id string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		if err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newService(store Store) *SubscriptionService {
	return NewSubscriptionService(store, "UTC", zap.NewNop())
}

func TestAddDerivesNextDueDate(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	now := time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sub, err := svc.Add(context.Background(), domain.CreateInput{
		OwnerID:     42,
		Name:        "Netflix",
		Amount:      15.99,
		Currency:    "USD",
		PeriodUnit:  recurrence.UnitMonthly,
		PeriodCount: 1,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Active)
	assert.True(t, sub.AnchorDate.Equal(now), "anchor defaults to creation time")
	// Month-end anchor clamps into February.
	assert.Equal(t, time.February, sub.NextDueDate.Month())
	assert.Equal(t, 28, sub.NextDueDate.Day())
	require.Len(t, store.created, 1)
}

func TestReAddUpdatesExistingAndResetsReminderState(t *testing.T) {
	existing := &domain.Subscription{
		ID: "sub1", OwnerID: 42, Name: "Netflix",
		Amount: 9.99, Currency: "USD",
		PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1,
		AnchorDate:  time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
		NextDueDate: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		LastReminderSentFor: sql.NullTime{
			Time: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC), Valid: true,
		},
		DispatchFailures: 3,
		Active:           true,
		Version:          7,
	}
	store := &fakeStore{byName: map[string]*domain.Subscription{"Netflix": existing}}
	svc := newService(store)
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sub, err := svc.Add(context.Background(), domain.CreateInput{
		OwnerID:     42,
		Name:        "Netflix",
		Amount:      15.99,
		Currency:    "USD",
		PeriodUnit:  recurrence.UnitMonthly,
		PeriodCount: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, "sub1", sub.ID, "existing row updated, not duplicated")
	assert.Empty(t, store.created)
	assert.InDelta(t, 15.99, sub.Amount, 0.001)
	assert.True(t, sub.AnchorDate.Equal(now), "schedule restarts from the edit")
	assert.Equal(t, time.April, sub.NextDueDate.Month())
	assert.False(t, sub.LastReminderSentFor.Valid, "reminder bookkeeping reset")
	assert.Zero(t, sub.DispatchFailures)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	svc := newService(&fakeStore{})

	tests := []struct {
		name string
		in   domain.CreateInput
	}{
		{"empty name", domain.CreateInput{OwnerID: 1, Amount: 10, Currency: "USD", PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1}},
		{"zero amount", domain.CreateInput{OwnerID: 1, Name: "X", Currency: "USD", PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1}},
		{"negative amount", domain.CreateInput{OwnerID: 1, Name: "X", Amount: -5, Currency: "USD", PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1}},
		{"bad currency", domain.CreateInput{OwnerID: 1, Name: "X", Amount: 10, Currency: "DOLLARS", PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1}},
		{"zero period count", domain.CreateInput{OwnerID: 1, Name: "X", Amount: 10, Currency: "USD", PeriodUnit: recurrence.UnitMonthly}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), tt.in)
			assert.ErrorIs(t, err, xerrors.ErrValidation)
		})
	}
}

func TestAddRejectsUnknownTimezone(t *testing.T) {
	svc := newService(&fakeStore{})
	_, err := svc.Add(context.Background(), domain.CreateInput{
		OwnerID: 1, Name: "X", Amount: 10, Currency: "USD",
		PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1,
		Timezone: "Nowhere/Void",
	})
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestDeleteByName(t *testing.T) {
	existing := &domain.Subscription{ID: "sub1", OwnerID: 42, Name: "Netflix", Version: 3, Active: true}
	store := &fakeStore{byName: map[string]*domain.Subscription{"Netflix": existing}}
	svc := newService(store)

	sub, err := svc.DeleteByName(context.Background(), 42, "Netflix")
	require.NoError(t, err)
	assert.False(t, sub.Active)
	assert.Equal(t, []string{"sub1"}, store.deleted)
}

func TestDeleteUnknownNameIsValidationError(t *testing.T) {
	store := &fakeStore{byName: map[string]*domain.Subscription{}}
	svc := newService(store)

	_, err := svc.DeleteByName(context.Background(), 42, "Hulu")
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestDeleteRetriesOnceOnVersionConflict(t *testing.T) {
	existing := &domain.Subscription{ID: "sub1", OwnerID: 42, Name: "Netflix", Version: 3, Active: true}
	store := &fakeStore{
		byName:     map[string]*domain.Subscription{"Netflix": existing},
		deleteErrs: []error{xerrors.ErrConcurrentModification},
	}
	svc := newService(store)

	_, err := svc.DeleteByName(context.Background(), 42, "Netflix")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub1"}, store.deleted)
}

func TestStatsAggregatesPerCurrency(t *testing.T) {
	store := &fakeStore{byName: map[string]*domain.Subscription{
		"Netflix": {ID: "a", OwnerID: 42, Name: "Netflix", Amount: 30, Currency: "USD",
			PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1,
			NextDueDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), Active: true},
		"Domain": {ID: "b", OwnerID: 42, Name: "Domain", Amount: 120, Currency: "USD",
			PeriodUnit: recurrence.UnitYearly, PeriodCount: 1,
			NextDueDate: time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC), Active: true},
		"Rent": {ID: "c", OwnerID: 42, Name: "Rent", Amount: 500, Currency: "EUR",
			PeriodUnit: recurrence.UnitMonthly, PeriodCount: 1,
			NextDueDate: time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC), Active: true},
	}}
	svc := newService(store)

	stats, err := svc.Stats(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ActiveCount)
	assert.InDelta(t, 40.0, stats.MonthlyTotals["USD"], 0.001) // 30 + 120/12
	assert.InDelta(t, 500.0, stats.MonthlyTotals["EUR"], 0.001)
	require.NotNil(t, stats.NextDue)
	assert.Equal(t, "b", stats.NextDue.ID, "soonest due subscription surfaced")
}
