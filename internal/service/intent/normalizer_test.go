package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "subwatch-service/internal/domain/intent"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/recurrence"
	"subwatch-service/internal/service/nlp"
)

type fakeExtractor struct {
	result *nlp.Extraction
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (*nlp.Extraction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newNormalizer(ex Extractor) *Normalizer {
	return NewNormalizer(ex, 0.6, zap.NewNop())
}

func TestNormalizeDeterministicAddSkipsNLP(t *testing.T) {
	fake := &fakeExtractor{}
	n := newNormalizer(fake)

	got, err := n.Normalize(context.Background(), 42, "Add Netflix 1000 monthly")
	require.NoError(t, err)

	assert.Equal(t, domain.KindAdd, got.Kind)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, float64(1000), got.Amount)
	assert.Equal(t, "USD", got.Currency) // default, never converted
	assert.Equal(t, recurrence.UnitMonthly, got.PeriodUnit)
	assert.Equal(t, 1, got.PeriodCount)
	assert.Equal(t, 0, fake.calls, "deterministic match must not call NLP")
}

func TestNormalizeFallsBackToNLP(t *testing.T) {
	fake := &fakeExtractor{result: &nlp.Extraction{
		Intent: "add", Service: "Spotify", Amount: 15, Currency: "usd",
		Period: "monthly", Confidence: 0.9,
	}}
	n := newNormalizer(fake)

	got, err := n.Normalize(context.Background(), 42, "I pay 15 dollars for Spotify every month")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, domain.KindAdd, got.Kind)
	assert.Equal(t, "Spotify", got.Name)
	assert.Equal(t, float64(15), got.Amount)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, recurrence.UnitMonthly, got.PeriodUnit)
}

func TestNormalizeLowConfidenceRejected(t *testing.T) {
	fake := &fakeExtractor{result: &nlp.Extraction{
		Intent: "add", Service: "Spotify", Amount: 15, Confidence: 0.3,
	}}
	n := newNormalizer(fake)

	_, err := n.Normalize(context.Background(), 42, "hmm spotify maybe fifteen")
	assert.ErrorIs(t, err, xerrors.ErrAmbiguousInput)
}

func TestNormalizeNLPUnavailableWithNoDeterministicMatch(t *testing.T) {
	fake := &fakeExtractor{err: xerrors.ErrNLPUnavailable}
	n := newNormalizer(fake)

	_, err := n.Normalize(context.Background(), 42, "something about music money")
	assert.ErrorIs(t, err, xerrors.ErrNLPUnavailable)
}

func TestNormalizeNLPUnavailableDeterministicStillWorks(t *testing.T) {
	fake := &fakeExtractor{err: xerrors.ErrNLPUnavailable}
	n := newNormalizer(fake)

	// Matcher classified "add" but found no amount; NLP down. The specific
	// failure is reported, not a guess.
	_, err := n.Normalize(context.Background(), 42, "add Netflix monthly")
	assert.ErrorIs(t, err, xerrors.ErrMissingAmount)
}

func TestNormalizeMissingAmountRejected(t *testing.T) {
	fake := &fakeExtractor{result: &nlp.Extraction{
		Intent: "add", Service: "Netflix", Confidence: 0.95,
	}}
	n := newNormalizer(fake)

	_, err := n.Normalize(context.Background(), 42, "start tracking Netflix")
	assert.ErrorIs(t, err, xerrors.ErrMissingAmount)
}

func TestNormalizeUnknownPeriodRejected(t *testing.T) {
	fake := &fakeExtractor{result: &nlp.Extraction{
		Intent: "add", Service: "Netflix", Amount: 10, Confidence: 0.95,
	}}
	n := newNormalizer(fake)

	_, err := n.Normalize(context.Background(), 42, "track Netflix 10 bi-fortnightly")
	assert.ErrorIs(t, err, xerrors.ErrUnknownPeriod)
}

func TestNormalizeDeleteByName(t *testing.T) {
	fake := &fakeExtractor{}
	n := newNormalizer(fake)

	got, err := n.Normalize(context.Background(), 42, "Delete my Netflix subscription")
	require.NoError(t, err)
	assert.Equal(t, domain.KindDelete, got.Kind)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, 0, fake.calls)
}

func TestNormalizeDeleteWithoutNameRejected(t *testing.T) {
	fake := &fakeExtractor{result: &nlp.Extraction{Intent: "delete", Confidence: 0.9}}
	n := newNormalizer(fake)

	_, err := n.Normalize(context.Background(), 42, "delete")
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestNormalizeCommandForcesKind(t *testing.T) {
	fake := &fakeExtractor{}
	n := newNormalizer(fake)

	got, err := n.NormalizeCommand(context.Background(), 42, domain.KindAdd, "Netflix 9.99 monthly")
	require.NoError(t, err)
	assert.Equal(t, domain.KindAdd, got.Kind)
	assert.Equal(t, "Netflix", got.Name)
	assert.Equal(t, 9.99, got.Amount)
}

func TestNormalizeEmptyInputRejected(t *testing.T) {
	n := newNormalizer(&fakeExtractor{})
	_, err := n.Normalize(context.Background(), 42, "   ")
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}
