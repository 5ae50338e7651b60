package journalv1

import "time"

// Kind classifies an audit event.
type Kind string

const (
	// KindSubmit records an order submission attempt.
	KindSubmit Kind = "SUBMIT"
	// KindStatus records an order status change.
	KindStatus Kind = "STATUS"
	// KindFill records an accepted fill.
	KindFill Kind = "FILL"
	// KindCancel records a cancel request.
	KindCancel Kind = "CANCEL"
	// KindReconcile records a reconciliation action.
	KindReconcile Kind = "RECONCILE"
	// KindOrphanFill records a fill for an order the engine did not know.
	KindOrphanFill Kind = "ORPHAN_FILL"
	// KindConnection records a broker session state change.
	KindConnection Kind = "CONNECTION"
)

// Event is a single audit journal entry. BrokerTime is the broker's clock
// where one applies, LocalTime is always the engine's clock.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	OMSID      string         `json:"oms_id,omitempty"`
	Symbol     string         `json:"symbol,omitempty"`
	BrokerTime time.Time      `json:"broker_time,omitempty"`
	LocalTime  time.Time      `json:"local_time"`
	Detail     map[string]any `json:"detail,omitempty"`
}
