// internal/service/intent/normalizer.go
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domain "subwatch-service/internal/domain/intent"
	xerrors "subwatch-service/internal/pkg/errors"
	"subwatch-service/internal/recurrence"
	"subwatch-service/internal/service/nlp"
)

const defaultCurrency = "USD"

// Extractor is the external NLP collaborator. It may be slow, wrong, or
// down; the normalizer treats it strictly as a hint.
type Extractor interface {
	Extract(ctx context.Context, text string) (*nlp.Extraction, error)
}

// Normalizer turns raw text or a structured command into a canonical
// SubscriptionIntent: Received -> Classified -> Extracted -> Validated.
// The deterministic matcher runs first; the NLP collaborator is consulted
// only when the matcher is inconclusive, and its guesses never override
// deterministic matches. Nothing here has side effects.
type Normalizer struct {
	extractor     Extractor
	minConfidence float64
	logger        *zap.Logger
}

func NewNormalizer(extractor Extractor, minConfidence float64, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		extractor:     extractor,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Normalize processes free-form text.
func (n *Normalizer) Normalize(ctx context.Context, ownerID int64, text string) (*domain.SubscriptionIntent, error) {
	return n.normalize(ctx, ownerID, text, domain.KindUnknown)
}

// NormalizeCommand processes the argument text of a slash command whose
// intent kind is already known, e.g. "/add Netflix 10 monthly".
func (n *Normalizer) NormalizeCommand(ctx context.Context, ownerID int64, kind domain.Kind, argText string) (*domain.SubscriptionIntent, error) {
	return n.normalize(ctx, ownerID, argText, kind)
}

func (n *Normalizer) normalize(ctx context.Context, ownerID int64, text string, forcedKind domain.Kind) (*domain.SubscriptionIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" && forcedKind == domain.KindUnknown {
		return nil, fmt.Errorf("%w: empty input", xerrors.ErrValidation)
	}

	ex := Match(text)
	if forcedKind != domain.KindUnknown {
		ex.Kind = forcedKind
	}

	if !n.conclusive(ex) {
		merged, err := n.consultNLP(ctx, text, ex)
		if err != nil {
			return nil, err
		}
		ex = merged
	}

	return n.validate(ownerID, text, ex)
}

// conclusive reports whether the deterministic result alone is enough to
// skip the NLP collaborator entirely.
func (n *Normalizer) conclusive(ex domain.Extraction) bool {
	switch ex.Kind {
	case domain.KindList, domain.KindStats:
		return true
	case domain.KindDelete:
		return ex.Name != ""
	case domain.KindAdd:
		return ex.Name != "" && ex.Amount > 0 && ex.PeriodUnit != ""
	}
	return false
}

// consultNLP asks the collaborator and merges its guess under the
// deterministic result. If the collaborator is unreachable the matcher
// result stands alone; if that is also unusable the input is rejected with
// ErrNLPUnavailable rather than guessed at.
func (n *Normalizer) consultNLP(ctx context.Context, text string, det domain.Extraction) (domain.Extraction, error) {
	guess, err := n.extractor.Extract(ctx, text)
	if err != nil {
		if !xerrors.Is(err, xerrors.ErrNLPUnavailable) {
			return det, err
		}
		n.logger.Warn("nlp collaborator unavailable, deterministic only", zap.Error(err))
		if det.Kind == domain.KindUnknown {
			return det, fmt.Errorf("%w: cannot interpret input", xerrors.ErrNLPUnavailable)
		}
		return det, nil
	}

	if guess.Confidence < n.minConfidence {
		// A low-confidence guess must never create or delete a financial
		// record. If the deterministic side already settled the intent we
		// keep it; otherwise reject.
		if det.Kind == domain.KindUnknown {
			return det, fmt.Errorf("%w: nlp confidence %.2f below %.2f",
				xerrors.ErrAmbiguousInput, guess.Confidence, n.minConfidence)
		}
		return det, nil
	}

	return mergeExtractions(det, guess), nil
}

// mergeExtractions fills gaps in the deterministic result from the NLP
// guess. Deterministic fields always win.
func mergeExtractions(det domain.Extraction, guess *nlp.Extraction) domain.Extraction {
	out := det
	if out.Kind == domain.KindUnknown {
		out.Kind = kindFromNLP(guess.Intent)
		out.Confidence = guess.Confidence
	}
	// The leftover-token name heuristic is only trustworthy when the
	// matcher also classified the intent.
	if out.Name == "" || (det.Kind == domain.KindUnknown && guess.Service != "") {
		out.Name = strings.TrimSpace(guess.Service)
	}
	if out.Amount == 0 {
		out.Amount = guess.Amount
	}
	if out.Currency == "" {
		out.Currency = strings.ToUpper(strings.TrimSpace(guess.Currency))
	}
	if out.PeriodUnit == "" && guess.Period != "" {
		if unit, err := recurrence.ParseUnit(guess.Period); err == nil {
			out.PeriodUnit = unit
			out.PeriodCount = 1
		}
	}
	return out
}

func kindFromNLP(intent string) domain.Kind {
	switch strings.ToLower(strings.TrimSpace(intent)) {
	case "add", "update":
		return domain.KindAdd
	case "delete":
		return domain.KindDelete
	case "list":
		return domain.KindList
	case "stats", "total":
		return domain.KindStats
	}
	return domain.KindUnknown
}

// validate enforces the acceptance rules and produces the canonical
// intent. Failures carry a specific rejection reason, never a silent
// default.
func (n *Normalizer) validate(ownerID int64, text string, ex domain.Extraction) (*domain.SubscriptionIntent, error) {
	out := &domain.SubscriptionIntent{
		Kind:    ex.Kind,
		OwnerID: ownerID,
		RawText: text,
	}

	switch ex.Kind {
	case domain.KindList, domain.KindStats:
		return out, nil

	case domain.KindDelete:
		if ex.Name == "" {
			return nil, fmt.Errorf("%w: no subscription name to delete", xerrors.ErrValidation)
		}
		out.Name = ex.Name
		return out, nil

	case domain.KindAdd:
		if ex.Name == "" {
			return nil, fmt.Errorf("%w: no subscription name", xerrors.ErrValidation)
		}
		if ex.Amount == 0 {
			return nil, fmt.Errorf("%w: %q", xerrors.ErrMissingAmount, text)
		}
		if ex.Amount < 0 {
			return nil, fmt.Errorf("%w: amount must be positive", xerrors.ErrValidation)
		}
		if ex.PeriodUnit == "" {
			return nil, fmt.Errorf("%w: no billing period in %q", xerrors.ErrUnknownPeriod, text)
		}
		out.Name = ex.Name
		out.Amount = ex.Amount
		out.Currency = ex.Currency
		if out.Currency == "" {
			out.Currency = defaultCurrency
		}
		out.PeriodUnit = ex.PeriodUnit
		out.PeriodCount = ex.PeriodCount
		if out.PeriodCount < 1 {
			out.PeriodCount = 1
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: could not classify input", xerrors.ErrAmbiguousInput)
}
