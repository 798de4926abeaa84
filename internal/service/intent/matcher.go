// internal/service/intent/matcher.go
package intent

import (
	"strconv"
	"strings"

	domain "subwatch-service/internal/domain/intent"
	"subwatch-service/internal/recurrence"
)

// Deterministic keyword/pattern matcher. It runs before the NLP
// collaborator and its results always win over NLP guesses. Matches carry
// confidence 1.0.

var intentKeywords = map[string]domain.Kind{
	"add":           domain.KindAdd,
	"new":           domain.KindAdd,
	"subscribe":     domain.KindAdd,
	"track":         domain.KindAdd,
	"delete":        domain.KindDelete,
	"remove":        domain.KindDelete,
	"cancel":        domain.KindDelete,
	"unsubscribe":   domain.KindDelete,
	"list":          domain.KindList,
	"show":          domain.KindList,
	"subscriptions": domain.KindList,
	"stats":         domain.KindStats,
	"total":         domain.KindStats,
	"spend":         domain.KindStats,
	"spending":      domain.KindStats,
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₽": "RUB",
}

var currencyWords = map[string]string{
	"usd": "USD", "dollar": "USD", "dollars": "USD", "bucks": "USD",
	"eur": "EUR", "euro": "EUR", "euros": "EUR",
	"gbp": "GBP", "pound": "GBP", "pounds": "GBP",
	"rub": "RUB", "ruble": "RUB", "rubles": "RUB",
}

var periodWords = map[string]recurrence.Unit{
	"daily":    recurrence.UnitDaily,
	"weekly":   recurrence.UnitWeekly,
	"monthly":  recurrence.UnitMonthly,
	"yearly":   recurrence.UnitYearly,
	"annual":   recurrence.UnitYearly,
	"annually": recurrence.UnitYearly,
}

var periodUnits = map[string]recurrence.Unit{
	"day": recurrence.UnitDaily, "days": recurrence.UnitDaily,
	"week": recurrence.UnitWeekly, "weeks": recurrence.UnitWeekly,
	"month": recurrence.UnitMonthly, "months": recurrence.UnitMonthly,
	"year": recurrence.UnitYearly, "years": recurrence.UnitYearly,
}

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "me": true, "for": true,
	"to": true, "of": true, "please": true, "subscription": true, "sub": true,
	"it": true, "is": true, "at": true, "i": true, "pay": true, "pays": true,
	"paying": true,
}

// Match runs the deterministic matcher over raw text. Fields it cannot
// find stay at their zero values; the normalizer decides whether the
// result is conclusive.
func Match(text string) domain.Extraction {
	words := tokenize(text)
	consumed := make([]bool, len(words))

	ex := domain.Extraction{Kind: domain.KindUnknown, Confidence: 1.0}

	// Classification: first intent keyword wins.
	for i, w := range words {
		if kind, ok := intentKeywords[w.lower]; ok {
			ex.Kind = kind
			consumed[i] = true
			break
		}
	}

	matchPeriod(words, consumed, &ex)
	matchAmount(words, consumed, &ex)

	// Whatever meaningful tokens remain name the service.
	var nameParts []string
	for i, w := range words {
		if consumed[i] || fillerWords[w.lower] {
			continue
		}
		if _, isKeyword := intentKeywords[w.lower]; isKeyword {
			continue
		}
		nameParts = append(nameParts, w.raw)
	}
	ex.Name = strings.Join(nameParts, " ")

	return ex
}

type token struct {
	raw   string
	lower string
}

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		raw := strings.Trim(f, ".,!?;:\"'")
		if raw == "" {
			continue
		}
		out = append(out, token{raw: raw, lower: strings.ToLower(raw)})
	}
	return out
}

// matchPeriod recognizes "monthly", "per month", "every month" and
// "every 2 months" phrasings.
func matchPeriod(words []token, consumed []bool, ex *domain.Extraction) {
	for i, w := range words {
		if consumed[i] {
			continue
		}
		if unit, ok := periodWords[w.lower]; ok {
			ex.PeriodUnit = unit
			ex.PeriodCount = 1
			consumed[i] = true
			return
		}
		if w.lower == "every" || w.lower == "per" || w.lower == "each" {
			// "every 2 months"
			if i+2 < len(words) {
				if n, err := strconv.Atoi(words[i+1].lower); err == nil && n > 0 {
					if unit, ok := periodUnits[words[i+2].lower]; ok {
						ex.PeriodUnit = unit
						ex.PeriodCount = n
						consumed[i], consumed[i+1], consumed[i+2] = true, true, true
						return
					}
				}
			}
			// "every month" / "per month"
			if i+1 < len(words) {
				if unit, ok := periodUnits[words[i+1].lower]; ok {
					ex.PeriodUnit = unit
					ex.PeriodCount = 1
					consumed[i], consumed[i+1] = true, true
					return
				}
			}
		}
	}
}

// matchAmount tolerates symbol-prefixed ($15.99), suffixed (15.99$ or
// "15 dollars"), ISO-coded (USD 15) and bare numeric notations.
func matchAmount(words []token, consumed []bool, ex *domain.Extraction) {
	for i, w := range words {
		if consumed[i] {
			continue
		}

		// Symbol glued to the number: $15.99 or 15.99$.
		for sym, code := range currencySymbols {
			if rest, ok := strings.CutPrefix(w.raw, sym); ok {
				if amt, err := parseNumber(rest); err == nil {
					ex.Amount, ex.Currency = amt, code
					consumed[i] = true
					return
				}
			}
			if rest, ok := strings.CutSuffix(w.raw, sym); ok {
				if amt, err := parseNumber(rest); err == nil {
					ex.Amount, ex.Currency = amt, code
					consumed[i] = true
					return
				}
			}
		}

		amt, err := parseNumber(w.lower)
		if err != nil {
			continue
		}
		ex.Amount = amt
		consumed[i] = true

		// Adjacent currency word or ISO code, either side.
		if i+1 < len(words) && !consumed[i+1] {
			if code, ok := currencyWords[words[i+1].lower]; ok {
				ex.Currency = code
				consumed[i+1] = true
				return
			}
		}
		if i > 0 && !consumed[i-1] {
			if code, ok := currencyWords[words[i-1].lower]; ok {
				ex.Currency = code
				consumed[i-1] = true
			}
		}
		return
	}
}

// parseNumber accepts a decimal comma ("15,99") and thousands grouping
// ("1,000", "12,345.67"). An ungrouped comma is rejected rather than
// guessed at; a misread separator on an amount is a financial error.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	if strings.Contains(s, ",") {
		intPart, frac, hasComma := strings.Cut(s, ",")
		switch {
		case hasComma && !strings.Contains(frac, ",") && !strings.Contains(s, ".") &&
			len(frac) >= 1 && len(frac) <= 2:
			s = intPart + "." + frac
		case thousandsGrouped(s):
			s = strings.ReplaceAll(s, ",", "")
		default:
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseFloat(s, 64)
}

// thousandsGrouped reports whether every comma in s separates full groups
// of three digits, with an optional decimal dot after the last group.
func thousandsGrouped(s string) bool {
	intPart, _, _ := strings.Cut(s, ".")
	groups := strings.Split(intPart, ",")
	if len(groups) < 2 || len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}
