package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "subwatch-service/internal/domain/intent"
	"subwatch-service/internal/recurrence"
)

func TestMatchAddWithBareAmount(t *testing.T) {
	ex := Match("Add Netflix 1000 monthly")

	assert.Equal(t, domain.KindAdd, ex.Kind)
	assert.Equal(t, "Netflix", ex.Name)
	assert.Equal(t, float64(1000), ex.Amount)
	assert.Equal(t, recurrence.UnitMonthly, ex.PeriodUnit)
	assert.Equal(t, 1, ex.PeriodCount)
	assert.Equal(t, 1.0, ex.Confidence)
}

func TestMatchAmountNotations(t *testing.T) {
	tests := []struct {
		text     string
		amount   float64
		currency string
	}{
		{"add Netflix $15.99 monthly", 15.99, "USD"},
		{"add Netflix 15.99$ monthly", 15.99, "USD"},
		{"add Spotify €9,99 monthly", 9.99, "EUR"},
		{"add iCloud 2.99 dollars monthly", 2.99, "USD"},
		{"add Rent 500 eur monthly", 500, "EUR"},
		{"add Netflix 1000 monthly", 1000, ""},
		{"add Rent 1,000 usd monthly", 1000, "USD"},
		{"add Rent 12,345.67 usd monthly", 12345.67, "USD"},
	}
	for _, tt := range tests {
		ex := Match(tt.text)
		assert.Equal(t, tt.amount, ex.Amount, tt.text)
		assert.Equal(t, tt.currency, ex.Currency, tt.text)
	}
}

func TestParseNumberSeparators(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"15,99", 15.99},
		{"9,5", 9.5},
		{"1,000", 1000},
		{"12,345,678", 12345678},
		{"12,34", 12.34},
		{"1,234.56", 1234.56},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 0.0001, tt.in)
	}

	// Commas that are neither a decimal nor full three-digit groups are
	// rejected instead of guessed at.
	for _, in := range []string{"1,0000", "1,,5", "1000,"} {
		_, err := parseNumber(in)
		assert.Error(t, err, in)
	}
}

func TestMatchPeriodPhrasings(t *testing.T) {
	tests := []struct {
		text  string
		unit  recurrence.Unit
		count int
	}{
		{"add Gym 30 monthly", recurrence.UnitMonthly, 1},
		{"add Gym 30 per month", recurrence.UnitMonthly, 1},
		{"add Gym 30 every month", recurrence.UnitMonthly, 1},
		{"add Gym 30 every 2 months", recurrence.UnitMonthly, 2},
		{"add Domain 12 yearly", recurrence.UnitYearly, 1},
		{"add Domain 12 annually", recurrence.UnitYearly, 1},
		{"add Coffee 5 weekly", recurrence.UnitWeekly, 1},
		{"add Parking 2 daily", recurrence.UnitDaily, 1},
	}
	for _, tt := range tests {
		ex := Match(tt.text)
		assert.Equal(t, tt.unit, ex.PeriodUnit, tt.text)
		assert.Equal(t, tt.count, ex.PeriodCount, tt.text)
	}
}

func TestMatchDelete(t *testing.T) {
	ex := Match("Delete my Netflix subscription")
	assert.Equal(t, domain.KindDelete, ex.Kind)
	assert.Equal(t, "Netflix", ex.Name)
}

func TestMatchListAndStats(t *testing.T) {
	assert.Equal(t, domain.KindList, Match("show me my subscriptions").Kind)
	assert.Equal(t, domain.KindList, Match("list").Kind)
	assert.Equal(t, domain.KindStats, Match("how much do I spend?").Kind)
	assert.Equal(t, domain.KindStats, Match("stats").Kind)
}

func TestMatchInconclusiveFreeText(t *testing.T) {
	// No intent keyword: the matcher must not guess.
	ex := Match("I pay 15 dollars for Spotify every month")
	assert.Equal(t, domain.KindUnknown, ex.Kind)
	// Entity extraction still works and merges over NLP results later.
	assert.Equal(t, float64(15), ex.Amount)
	assert.Equal(t, "USD", ex.Currency)
	assert.Equal(t, recurrence.UnitMonthly, ex.PeriodUnit)
}

func TestMatchMultiWordName(t *testing.T) {
	ex := Match("add Amazon Prime 14.99 monthly")
	assert.Equal(t, "Amazon Prime", ex.Name)
}
