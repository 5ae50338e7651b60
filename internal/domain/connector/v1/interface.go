package connectorv1

import (
	"context"

	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
)

// Connector abstracts a broker session. Implementations own the transport,
// the engine only sees normalized events and query results.
//
//go:generate mockgen -source=interface.go -destination=mock/interface_mock.go -package=connectorv1_mock
type Connector interface {
	// Connect establishes the broker session.
	Connect(ctx context.Context) error

	// Disconnect tears down the broker session.
	Disconnect(ctx context.Context) error

	// SubmitOrder sends the order to the broker and returns the broker
	// reference assigned to it. An error means the transport failed and
	// the broker-side outcome is unknown.
	SubmitOrder(ctx context.Context, order *orderv1.Order) (SubmitResult, error)

	// CancelOrder requests cancellation of the order bound to ref.
	CancelOrder(ctx context.Context, ref orderv1.BrokerRef) error

	// QueryOpenOrders returns the broker's current view of working orders.
	QueryOpenOrders(ctx context.Context) ([]OpenOrder, error)

	// RecentExecutions returns executions the broker reports for the
	// current session, used to backfill fills missed while disconnected.
	RecentExecutions(ctx context.Context) ([]Execution, error)

	// Events returns the stream of status, fill and connection events.
	// The channel closes when the session ends permanently.
	Events() <-chan Event
}
