package connectorv1

import (
	"time"

	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
)

// ConnectionState is the transport state of the broker session.
type ConnectionState string

const (
	// StateConnected means the session is up and events are flowing.
	StateConnected ConnectionState = "CONNECTED"
	// StateDisconnected means the session dropped, broker state is unknown.
	StateDisconnected ConnectionState = "DISCONNECTED"
	// StateReconnecting means a reconnect attempt is in progress.
	StateReconnecting ConnectionState = "RECONNECTING"
)

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	// EventStatus carries an order status update from the broker.
	EventStatus EventType = "STATUS"
	// EventFill carries an execution report from the broker.
	EventFill EventType = "FILL"
	// EventConnection carries a connection state change.
	EventConnection EventType = "CONNECTION"
)

// StatusEvent is a broker order status update.
type StatusEvent struct {
	Ref        orderv1.BrokerRef
	Status     orderv1.Status
	Reason     string
	BrokerTime time.Time
}

// FillEvent is a broker execution report.
type FillEvent struct {
	Ref         orderv1.BrokerRef
	ExecutionID string
	Symbol      string
	Side        orderv1.Side
	Quantity    float64
	Price       float64
	BrokerTime  time.Time
}

// ConnectionEvent is a broker session state change.
type ConnectionEvent struct {
	State  ConnectionState
	Reason string
}

// Event is the single stream element delivered by a connector. Exactly one
// of Status, Fill or Connection is set, matching Type.
type Event struct {
	Type       EventType
	Status     *StatusEvent
	Fill       *FillEvent
	Connection *ConnectionEvent
	LocalTime  time.Time
}

// OpenOrder is a broker-side view of a working order, used by reconciliation.
type OpenOrder struct {
	Ref        orderv1.BrokerRef
	Symbol     string
	Side       orderv1.Side
	Quantity   float64
	Filled     float64
	LimitPrice float64
	Status     orderv1.Status
	BrokerTime time.Time
}

// Execution is a broker-side historical execution, used by reconciliation.
type Execution struct {
	Ref         orderv1.BrokerRef
	ExecutionID string
	Symbol      string
	Side        orderv1.Side
	Quantity    float64
	Price       float64
	BrokerTime  time.Time
}

// SubmitResult is what the broker returned from a submit call.
type SubmitResult struct {
	Ref orderv1.BrokerRef
}
