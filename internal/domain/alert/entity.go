// internal/domain/alert/entity.go
package alert

import "time"

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an operator-facing alert, emitted when reminder dispatch for a
// subscription exhausts its retry budget.
type Event struct {
	Severity       Severity  `json:"severity"`
	SubscriptionID string    `json:"subscription_id"`
	OwnerID        int64     `json:"owner_id"`
	Reason         string    `json:"reason"`
	Attempts       int       `json:"attempts"`
	OccurredAt     time.Time `json:"occurred_at"`
}
