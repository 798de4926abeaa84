// internal/domain/intent/entity.go
package intent

import "subwatch-service/internal/recurrence"

type Kind string

const (
	KindAdd     Kind = "add"
	KindDelete  Kind = "delete"
	KindList    Kind = "list"
	KindStats   Kind = "stats"
	KindUnknown Kind = "unknown"
)

// Stage tracks how far a raw input made it through normalization.
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageExtracted  Stage = "extracted"
	StageValidated  Stage = "validated"
)

// Extraction is the merged output of the deterministic matcher and the NLP
// collaborator before validation. Zero values mean "not found".
type Extraction struct {
	Kind        Kind
	Name        string
	Amount      float64
	Currency    string
	PeriodUnit  recurrence.Unit
	PeriodCount int
	// Confidence is 1.0 for deterministic matches; NLP results carry the
	// collaborator's own estimate.
	Confidence float64
}

// SubscriptionIntent is the canonical, validated form of a user request.
// Name/Amount/Currency/Period are only populated for add intents; Name
// alone for delete intents.
type SubscriptionIntent struct {
	Kind        Kind            `json:"kind"`
	OwnerID     int64           `json:"owner_id"`
	Name        string          `json:"name,omitempty"`
	Amount      float64         `json:"amount,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	PeriodUnit  recurrence.Unit `json:"period_unit,omitempty"`
	PeriodCount int             `json:"period_count,omitempty"`
	RawText     string          `json:"raw_text"`
}
