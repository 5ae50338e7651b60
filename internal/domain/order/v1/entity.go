package orderv1

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Side is the direction of an order.
type Side string

const (
	// SideBuy buys the instrument.
	SideBuy Side = "BUY"
	// SideSell sells the instrument.
	SideSell Side = "SELL"
)

// Opposite returns the flattening side for a position opened on this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type is the order type.
type Type string

const (
	// TypeMarket executes at the best available price.
	TypeMarket Type = "MARKET"
	// TypeLimit executes at the limit price or better.
	TypeLimit Type = "LIMIT"
)

// TimeInForce controls how long an order stays working at the broker.
type TimeInForce string

const (
	// TifDay expires at the end of the trading session.
	TifDay TimeInForce = "DAY"
	// TifGTC stays working until canceled.
	TifGTC TimeInForce = "GTC"
	// TifIOC fills immediately, any remainder is canceled.
	TifIOC TimeInForce = "IOC"
)

// Status is the lifecycle status of an order.
type Status string

const (
	// StatusNew means the order exists locally but is not acknowledged by the broker.
	StatusNew Status = "NEW"
	// StatusWorking means the broker acknowledged the order.
	StatusWorking Status = "WORKING"
	// StatusPartiallyFilled means at least one fill arrived but quantity remains.
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	// StatusFilled means the full quantity was executed.
	StatusFilled Status = "FILLED"
	// StatusCanceled means the order was canceled before completing.
	StatusCanceled Status = "CANCELED"
	// StatusRejected means the broker refused the order.
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// rank orders statuses so that lifecycle progress never moves backward.
func (s Status) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusWorking:
		return 1
	case StatusPartiallyFilled:
		return 2
	case StatusFilled, StatusCanceled, StatusRejected:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next is a legal
// status-driven transition. Fill-driven transitions are applied
// separately and may override a terminal CANCELED with FILLED.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return false
	}
	switch next {
	case StatusWorking:
		return s == StatusNew
	case StatusPartiallyFilled:
		return s == StatusNew || s == StatusWorking
	case StatusFilled:
		return s == StatusNew || s == StatusWorking || s == StatusPartiallyFilled
	case StatusCanceled:
		return s == StatusWorking || s == StatusPartiallyFilled
	case StatusRejected:
		return s == StatusNew || s == StatusWorking
	}
	return false
}

// Progressed reports whether next is at least as far along the lifecycle as s.
func (s Status) Progressed(next Status) bool {
	return next.rank() >= s.rank()
}

// NewOMSID returns a new lexicographically sortable order id.
func NewOMSID() string {
	return ulid.Make().String()
}

// Order is an immutable order request as submitted to the engine.
type Order struct {
	OMSID       string
	ClientTag   string
	Symbol      string
	Side        Side
	Type        Type
	Quantity    float64
	LimitPrice  float64
	TimeInForce TimeInForce
	Account     string

	// FlattenReason tags orders the engine itself generated to close
	// positions. Rejections of tagged orders never trigger another flatten.
	FlattenReason string

	CreatedAt time.Time
}

// Validate checks the order request before it is admitted to the store.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order symbol is required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("unsupported order side %q", o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %v", o.Quantity)
	}
	switch o.Type {
	case TypeMarket:
	case TypeLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("limit order price must be positive, got %v", o.LimitPrice)
		}
	default:
		return fmt.Errorf("unsupported order type %q", o.Type)
	}
	return nil
}

// BrokerRef identifies an order at the broker. PermID is preferred when the
// broker assigns one because it survives sessions. When only a session-scoped
// id exists, SessionDate disambiguates ids the broker reuses across days.
type BrokerRef struct {
	PermID      string
	OrderID     string
	SessionDate string
}

// Empty reports whether no broker id has been assigned yet.
func (r BrokerRef) Empty() bool {
	return r.PermID == "" && r.OrderID == ""
}

// Key returns the canonical identity string used for broker-side lookup.
func (r BrokerRef) Key() string {
	if r.PermID != "" {
		return "perm:" + r.PermID
	}
	return "session:" + r.SessionDate + ":" + r.OrderID
}

// Keys returns every identity string the reference answers to. Brokers do
// not always report the same id in every listing, so matching has to accept
// either the perm or the session identity.
func (r BrokerRef) Keys() []string {
	var keys []string
	if r.PermID != "" {
		keys = append(keys, "perm:"+r.PermID)
	}
	if r.OrderID != "" {
		keys = append(keys, "session:"+r.SessionDate+":"+r.OrderID)
	}
	return keys
}

// Fill is a single execution report for an order.
type Fill struct {
	ExecutionID string
	OMSID       string
	Symbol      string
	Side        Side
	Quantity    float64
	Price       float64
	BrokerTime  time.Time
	LocalTime   time.Time
}

// OrderState is the mutable engine-side view of an order.
type OrderState struct {
	Order     Order
	BrokerRef BrokerRef
	Status    Status

	FilledQuantity float64
	AvgFillPrice   float64
	Fills          []Fill

	// CancelRequested records a cancel in flight. A fill that arrives after
	// the request still wins.
	CancelRequested bool

	// PendingReconcile marks orders whose broker state is unknown, either
	// because submit transport failed or a status update was missed.
	PendingReconcile bool

	// Recovered marks state synthesized during reconciliation for orders or
	// fills the engine had no local record of.
	Recovered bool

	RejectReason string

	// LastBrokerTime is the broker timestamp of the most recent event
	// observed for this order. Staleness decisions prefer it over local
	// wall-clock times.
	LastBrokerTime time.Time

	CreatedAt  time.Time
	UpdatedAt  time.Time
	TerminalAt time.Time
}

// Remaining returns the unfilled quantity.
func (s *OrderState) Remaining() float64 {
	rem := s.Order.Quantity - s.FilledQuantity
	if rem < 0 {
		return 0
	}
	return rem
}

// Open reports whether the order can still produce fills.
func (s *OrderState) Open() bool {
	return !s.Status.IsTerminal()
}

// Clone returns a deep copy safe to hand outside the store.
func (s *OrderState) Clone() *OrderState {
	cp := *s
	cp.Fills = make([]Fill, len(s.Fills))
	copy(cp.Fills, s.Fills)
	return &cp
}

// Position is the net signed quantity and average cost per symbol, derived
// entirely from accepted fills.
type Position struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
}
