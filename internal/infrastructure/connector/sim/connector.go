package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	connectorv1 "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1"
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
)

// Connector is an in-process broker simulation. It acknowledges every
// submit, fills market orders immediately at the configured reference
// price and leaves limit orders working until they are canceled. Useful
// for local runs and smoke tests without a broker session.
type Connector struct {
	logger logger.Interface

	mu        sync.Mutex
	connected bool
	nextID    int
	nextExec  int
	prices    map[string]float64
	open      map[string]*simOrder
	execs     []connectorv1.Execution

	events chan connectorv1.Event
}

type simOrder struct {
	ref    orderv1.BrokerRef
	order  orderv1.Order
	filled float64
}

var _ connectorv1.Connector = (*Connector)(nil)

// NewConnector creates a simulated broker with the given reference prices.
func NewConnector(log logger.Interface, prices map[string]float64) *Connector {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &Connector{
		logger: log,
		prices: prices,
		open:   make(map[string]*simOrder),
		events: make(chan connectorv1.Event, 256),
	}
}

// SetPrice updates the reference price used to fill market orders.
func (c *Connector) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

// Connect marks the session up and emits a connection event.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.emit(connectorv1.Event{
		Type: connectorv1.EventConnection,
		Connection: &connectorv1.ConnectionEvent{
			State: connectorv1.StateConnected,
		},
	})
	return nil
}

// Disconnect marks the session down and closes the event stream.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.events)
	return nil
}

// SubmitOrder assigns a broker reference, acknowledges the order and fills
// market orders at the reference price.
func (c *Connector) SubmitOrder(ctx context.Context, order *orderv1.Order) (connectorv1.SubmitResult, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return connectorv1.SubmitResult{}, errors.TracerFromError(errors.NewErrorDetails(
			"simulated broker is not connected",
			string(errors.ConnectorUnavailable),
			"submit",
		))
	}

	c.nextID++
	ref := orderv1.BrokerRef{
		PermID:      fmt.Sprintf("sim-perm-%d", c.nextID),
		OrderID:     fmt.Sprintf("%d", c.nextID),
		SessionDate: time.Now().Format("2006-01-02"),
	}
	so := &simOrder{ref: ref, order: *order}
	c.open[ref.Key()] = so
	price := c.prices[order.Symbol]
	c.mu.Unlock()

	c.emit(connectorv1.Event{
		Type: connectorv1.EventStatus,
		Status: &connectorv1.StatusEvent{
			Ref:        ref,
			Status:     orderv1.StatusWorking,
			BrokerTime: time.Now(),
		},
	})

	if order.Type == orderv1.TypeMarket {
		if price <= 0 {
			c.reject(ref, "no reference price for symbol")
			return connectorv1.SubmitResult{Ref: ref}, nil
		}
		c.fill(so, price)
	}

	return connectorv1.SubmitResult{Ref: ref}, nil
}

// CancelOrder cancels a working order.
func (c *Connector) CancelOrder(ctx context.Context, ref orderv1.BrokerRef) error {
	c.mu.Lock()
	so, ok := c.open[ref.Key()]
	if ok {
		delete(c.open, ref.Key())
	}
	c.mu.Unlock()

	if !ok {
		return errors.TracerFromError(errors.NewErrorDetails(
			"order not working at simulated broker",
			string(errors.ConnectorCancelError),
			"cancel",
		))
	}

	c.emit(connectorv1.Event{
		Type: connectorv1.EventStatus,
		Status: &connectorv1.StatusEvent{
			Ref:        so.ref,
			Status:     orderv1.StatusCanceled,
			BrokerTime: time.Now(),
		},
	})
	return nil
}

// QueryOpenOrders returns the simulated working orders.
func (c *Connector) QueryOpenOrders(ctx context.Context) ([]connectorv1.OpenOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]connectorv1.OpenOrder, 0, len(c.open))
	for _, so := range c.open {
		status := orderv1.StatusWorking
		if so.filled > 0 {
			status = orderv1.StatusPartiallyFilled
		}
		out = append(out, connectorv1.OpenOrder{
			Ref:        so.ref,
			Symbol:     so.order.Symbol,
			Side:       so.order.Side,
			Quantity:   so.order.Quantity,
			Filled:     so.filled,
			LimitPrice: so.order.LimitPrice,
			Status:     status,
			BrokerTime: time.Now(),
		})
	}
	return out, nil
}

// RecentExecutions returns every execution of the session.
func (c *Connector) RecentExecutions(ctx context.Context) ([]connectorv1.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]connectorv1.Execution, len(c.execs))
	copy(out, c.execs)
	return out, nil
}

// Events returns the simulated event stream.
func (c *Connector) Events() <-chan connectorv1.Event {
	return c.events
}

func (c *Connector) fill(so *simOrder, price float64) {
	c.mu.Lock()
	c.nextExec++
	exec := connectorv1.Execution{
		Ref:         so.ref,
		ExecutionID: fmt.Sprintf("sim-exec-%d", c.nextExec),
		Symbol:      so.order.Symbol,
		Side:        so.order.Side,
		Quantity:    so.order.Quantity - so.filled,
		Price:       price,
		BrokerTime:  time.Now(),
	}
	so.filled = so.order.Quantity
	c.execs = append(c.execs, exec)
	delete(c.open, so.ref.Key())
	c.mu.Unlock()

	c.emit(connectorv1.Event{
		Type: connectorv1.EventFill,
		Fill: &connectorv1.FillEvent{
			Ref:         exec.Ref,
			ExecutionID: exec.ExecutionID,
			Symbol:      exec.Symbol,
			Side:        exec.Side,
			Quantity:    exec.Quantity,
			Price:       exec.Price,
			BrokerTime:  exec.BrokerTime,
		},
	})
}

func (c *Connector) reject(ref orderv1.BrokerRef, reason string) {
	c.mu.Lock()
	delete(c.open, ref.Key())
	c.mu.Unlock()

	c.emit(connectorv1.Event{
		Type: connectorv1.EventStatus,
		Status: &connectorv1.StatusEvent{
			Ref:        ref,
			Status:     orderv1.StatusRejected,
			Reason:     reason,
			BrokerTime: time.Now(),
		},
	})
}

func (c *Connector) emit(event connectorv1.Event) {
	event.LocalTime = time.Now()
	select {
	case c.events <- event:
	default:
		c.logger.Warn("simulated event buffer full, event dropped",
			logger.Field{Key: "type", Value: event.Type},
		)
	}
}
