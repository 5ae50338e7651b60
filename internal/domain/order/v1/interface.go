package orderv1

import (
	"context"
	"time"
)

// Store is the authoritative in-memory order state store.
//
//go:generate mockgen -source=interface.go -destination=mock/interface_mock.go -package=orderv1_mock
type Store interface {
	// Create admits a new order state. The oms id must be unused.
	Create(ctx context.Context, state *OrderState) error

	// Get returns a copy of the state for the given oms id.
	Get(ctx context.Context, omsID string) (*OrderState, error)

	// Update applies fn to the live state under the order's lock and
	// returns a copy of the result. fn returning an error aborts the update.
	Update(ctx context.Context, omsID string, fn func(*OrderState) error) (*OrderState, error)

	// Bind associates a broker reference with an order. A broker reference
	// binds at most once and never rebinds to a different order.
	Bind(ctx context.Context, omsID string, ref BrokerRef) error

	// FindByBroker returns a copy of the state bound to the given reference.
	FindByBroker(ctx context.Context, ref BrokerRef) (*OrderState, error)

	// Open returns copies of all non-terminal order states.
	Open(ctx context.Context) []*OrderState

	// All returns copies of every order state in the store.
	All(ctx context.Context) []*OrderState

	// SweepTerminal removes terminal orders whose TerminalAt is before
	// cutoff and returns how many were removed.
	SweepTerminal(ctx context.Context, cutoff time.Time) int
}
