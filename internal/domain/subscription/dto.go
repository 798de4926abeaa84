// internal/domain/subscription/dto.go
package subscription

import (
	"time"

	"subwatch-service/internal/recurrence"
)

// CreateInput is what a validated "add" intent hands to the service layer.
type CreateInput struct {
	OwnerID     int64           `json:"owner_id"`
	Name        string          `json:"name" validate:"required"`
	Amount      float64         `json:"amount" validate:"gt=0"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	PeriodUnit  recurrence.Unit `json:"period_unit" validate:"required"`
	PeriodCount int             `json:"period_count" validate:"gte=1"`
	AnchorDate  time.Time       `json:"anchor_date"`
	Timezone    string          `json:"timezone"`
}

// OwnerStats summarizes one owner's subscription spend. Totals are kept
// per currency; amounts are never converted.
type OwnerStats struct {
	OwnerID       int64              `json:"owner_id"`
	ActiveCount   int                `json:"active_count"`
	MonthlyTotals map[string]float64 `json:"monthly_totals"`
	NextDue       *Subscription      `json:"next_due,omitempty"`
}
