package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	connectorv1 "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1"
	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/internal/infrastructure/redis/snapshot"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/brokerclock"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/fills"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/ratelimit"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/reconciler"
	"github.com/muhammadchandra19/execution-engine/pkg/config"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
)

// flattenReasonReject tags flatten orders triggered by a rejection, so
// their own rejections never trigger another flatten.
const flattenReasonReject = "order_rejected"

// SnapshotStore persists advisory position snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *snapshot.Snapshot) error
}

// Engine is the execution core. It owns order state, applies the broker
// event stream and exposes the submit, cancel and flatten operations.
// All state mutations flow through the store, events apply on a single
// goroutine per stream element.
type Engine struct {
	cfg        *config.Config
	logger     logger.Interface
	store      orderv1.Store
	connector  connectorv1.Connector
	aggregator *fills.Aggregator
	clock      *brokerclock.Clock
	journal    journalv1.Journal
	reconciler *reconciler.Reconciler

	limiter         *ratelimit.TokenBucket
	snapshots       SnapshotStore
	flattenOnReject bool

	events       chan connectorv1.Event
	reconcileNow chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewEngine creates an engine. Options wire the optional rate limiter and
// snapshot store.
func NewEngine(
	store orderv1.Store,
	connector connectorv1.Connector,
	aggregator *fills.Aggregator,
	clock *brokerclock.Clock,
	journal journalv1.Journal,
	recon *reconciler.Reconciler,
	log logger.Interface,
	cfg *config.Config,
	opts ...Option,
) *Engine {
	bufSize := cfg.Engine.EventBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}

	e := &Engine{
		cfg:          cfg,
		logger:       log,
		store:        store,
		connector:    connector,
		aggregator:   aggregator,
		clock:        clock,
		journal:      journal,
		reconciler:   recon,
		events:       make(chan connectorv1.Event, bufSize),
		reconcileNow: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start connects the broker session and launches the event, reconcile and
// snapshot loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.connector.Connect(e.ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return errors.TracerFromError(err)
	}

	e.logger.InfoContext(ctx, "engine starting",
		logger.Field{Key: "account", Value: e.cfg.Engine.Account},
	)

	e.wg.Add(2)
	go e.pumpLoop()
	go e.applyLoop()

	e.wg.Add(1)
	go e.reconcileLoop()

	if e.snapshots != nil {
		e.wg.Add(1)
		go e.snapshotLoop()
	}

	return nil
}

// Stop shuts the engine down, waiting up to the configured timeout for the
// loops to drain.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timeout := e.cfg.Engine.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
	case <-time.After(timeout):
		e.logger.Warn("engine shutdown timed out waiting for loops")
	case <-ctx.Done():
	}

	if err := e.connector.Disconnect(ctx); err != nil {
		e.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "disconnect"},
		)
		return err
	}

	e.logger.InfoContext(ctx, "engine stopped")
	return nil
}

// Submit validates and submits an order. The returned oms id is valid even
// when the error is non-nil: a transport failure leaves the order in the
// store flagged for reconciliation instead of retrying blindly, because the
// broker may have accepted it.
func (e *Engine) Submit(ctx context.Context, order *orderv1.Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", errors.TracerFromError(err)
	}

	if order.OMSID == "" {
		order.OMSID = orderv1.NewOMSID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if order.Account == "" {
		order.Account = e.cfg.Engine.Account
	}
	if order.TimeInForce == "" {
		order.TimeInForce = orderv1.TifDay
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", errors.TracerFromError(err)
		}
	}

	state := &orderv1.OrderState{
		Order:  *order,
		Status: orderv1.StatusNew,
	}
	if err := e.store.Create(ctx, state); err != nil {
		return "", err
	}

	e.journal.Record(ctx, journalv1.Event{
		Kind:   journalv1.KindSubmit,
		OMSID:  order.OMSID,
		Symbol: order.Symbol,
		Detail: map[string]any{
			"side":           string(order.Side),
			"type":           string(order.Type),
			"quantity":       order.Quantity,
			"limit_price":    order.LimitPrice,
			"flatten_reason": order.FlattenReason,
		},
	})

	result, err := e.connector.SubmitOrder(ctx, order)
	if err != nil {
		// Outcome unknown, the broker may still be working this order.
		// Reconciliation settles it, never a retry.
		_, updateErr := e.store.Update(ctx, order.OMSID, func(s *orderv1.OrderState) error {
			s.PendingReconcile = true
			return nil
		})
		if updateErr != nil {
			e.logger.ErrorContext(ctx, errors.TracerFromError(updateErr),
				logger.Field{Key: "oms_id", Value: order.OMSID},
			)
		}

		e.journal.Record(ctx, journalv1.Event{
			Kind:   journalv1.KindSubmit,
			OMSID:  order.OMSID,
			Symbol: order.Symbol,
			Detail: map[string]any{
				"transport_error": err.Error(),
			},
		})
		e.triggerReconcile()

		return order.OMSID, errors.TracerFromError(errors.NewErrorDetails(
			"order submit transport failed, pending reconciliation",
			string(errors.ConnectorSubmitError),
			"submit",
		))
	}

	if !result.Ref.Empty() {
		if err := e.store.Bind(ctx, order.OMSID, result.Ref); err != nil {
			e.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "oms_id", Value: order.OMSID},
				logger.Field{Key: "broker_ref", Value: result.Ref.Key()},
			)
		}
	}

	return order.OMSID, nil
}

// Cancel requests cancellation of an order. Canceling a terminal order is a
// no-op that touches neither the broker nor the state. The cancel is a
// request only, a fill that races it still wins.
func (e *Engine) Cancel(ctx context.Context, omsID string) (bool, error) {
	state, err := e.store.Get(ctx, omsID)
	if err != nil {
		return false, err
	}

	if state.Status.IsTerminal() {
		return false, nil
	}

	_, err = e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
		s.CancelRequested = true
		return nil
	})
	if err != nil {
		return false, err
	}

	e.journal.Record(ctx, journalv1.Event{
		Kind:   journalv1.KindCancel,
		OMSID:  omsID,
		Symbol: state.Order.Symbol,
		Detail: map[string]any{
			"status": string(state.Status),
		},
	})

	if state.BrokerRef.Empty() {
		// Nothing to cancel at the broker yet, reconciliation resolves
		// whether the order exists there at all.
		_, err = e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
			s.PendingReconcile = true
			return nil
		})
		if err != nil {
			return false, err
		}
		e.triggerReconcile()
		return true, nil
	}

	if err := e.connector.CancelOrder(ctx, state.BrokerRef); err != nil {
		_, updateErr := e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
			s.PendingReconcile = true
			return nil
		})
		if updateErr != nil {
			e.logger.ErrorContext(ctx, errors.TracerFromError(updateErr),
				logger.Field{Key: "oms_id", Value: omsID},
			)
		}
		e.triggerReconcile()

		return false, errors.TracerFromError(errors.NewErrorDetails(
			"cancel transport failed, pending reconciliation",
			string(errors.ConnectorCancelError),
			"cancel",
		))
	}

	return true, nil
}

// FlattenAll closes every open position with tagged market orders. Orders
// carrying a flatten tag are themselves exempt from flatten triggers. The
// returned slice holds the symbols still exposed after the pass, positions
// whose offsetting submit did not reach the broker, so callers can escalate
// per symbol instead of guessing from the error.
func (e *Engine) FlattenAll(ctx context.Context, reason string) ([]string, error) {
	if reason == "" {
		reason = "manual"
	}

	positions := e.Positions(ctx)

	var residual []string
	var lastErr error
	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}

		side := orderv1.SideSell
		qty := pos.Quantity
		if qty < 0 {
			side = orderv1.SideBuy
			qty = -qty
		}

		order := &orderv1.Order{
			Symbol:        pos.Symbol,
			Side:          side,
			Type:          orderv1.TypeMarket,
			Quantity:      qty,
			TimeInForce:   orderv1.TifIOC,
			FlattenReason: reason,
		}

		if _, err := e.Submit(ctx, order); err != nil {
			e.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "flatten"},
				logger.Field{Key: "symbol", Value: pos.Symbol},
			)
			residual = append(residual, pos.Symbol)
			lastErr = err
		}
	}

	return residual, lastErr
}

// Positions derives net signed positions per symbol from the fill sets of
// every order in the store, recovered orders included. Average cost is the
// volume weighted price over all accepted fills for the symbol.
func (e *Engine) Positions(ctx context.Context) []orderv1.Position {
	type tally struct {
		net      float64
		volume   float64
		notional float64
	}

	book := make(map[string]*tally)
	for _, state := range e.store.All(ctx) {
		for _, fill := range state.Fills {
			t, ok := book[fill.Symbol]
			if !ok {
				t = &tally{}
				book[fill.Symbol] = t
			}
			if fill.Side == orderv1.SideBuy {
				t.net += fill.Quantity
			} else {
				t.net -= fill.Quantity
			}
			t.volume += fill.Quantity
			t.notional += fill.Quantity * fill.Price
		}
	}

	out := make([]orderv1.Position, 0, len(book))
	for symbol, t := range book {
		pos := orderv1.Position{Symbol: symbol, Quantity: t.net}
		if t.volume > 0 {
			pos.AvgCost = t.notional / t.volume
		}
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// pumpLoop forwards connector events into the bounded apply queue. The send
// blocks when the queue is full, backpressure is preferable to losing fills.
func (e *Engine) pumpLoop() {
	defer e.wg.Done()
	defer close(e.events)

	stream := e.connector.Events()
	for {
		select {
		case <-e.ctx.Done():
			return
		case event, ok := <-stream:
			if !ok {
				return
			}
			select {
			case e.events <- event:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

// applyLoop applies events one at a time. Single-threaded application keeps
// per-order updates ordered without extra locking in the handlers.
func (e *Engine) applyLoop() {
	defer e.wg.Done()

	for event := range e.events {
		e.applyEvent(event)
	}
}

func (e *Engine) applyEvent(event connectorv1.Event) {
	ctx := e.ctx

	switch event.Type {
	case connectorv1.EventConnection:
		e.handleConnectionEvent(ctx, event)
	case connectorv1.EventStatus:
		e.handleStatusEvent(ctx, event)
	case connectorv1.EventFill:
		e.handleFillEvent(ctx, event)
	}
}

func (e *Engine) handleConnectionEvent(ctx context.Context, event connectorv1.Event) {
	conn := event.Connection
	if conn == nil {
		return
	}

	e.journal.Record(ctx, journalv1.Event{
		Kind:      journalv1.KindConnection,
		LocalTime: event.LocalTime,
		Detail: map[string]any{
			"state":  string(conn.State),
			"reason": conn.Reason,
		},
	})

	if conn.State == connectorv1.StateConnected {
		// Events may have been missed while the session was down.
		e.triggerReconcile()
	}
}

func (e *Engine) handleStatusEvent(ctx context.Context, event connectorv1.Event) {
	status := event.Status
	if status == nil {
		return
	}

	e.clock.Observe(status.BrokerTime, event.LocalTime)

	state, err := e.store.FindByBroker(ctx, status.Ref)
	if err != nil {
		e.logger.Debug("status event for unknown broker reference",
			logger.Field{Key: "broker_ref", Value: status.Ref.Key()},
			logger.Field{Key: "status", Value: status.Status},
		)
		e.triggerReconcile()
		return
	}

	omsID := state.Order.OMSID
	next := status.Status

	// The status text never outranks fills. A FILLED report with quantity
	// still outstanding locally means executions are missing, pull them
	// through reconciliation instead of trusting the text.
	if next == orderv1.StatusFilled && state.Remaining() > 0 {
		_, err := e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
			s.PendingReconcile = true
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "oms_id", Value: omsID},
			)
		}
		e.triggerReconcile()
		return
	}

	updated, err := e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
		if status.BrokerTime.After(s.LastBrokerTime) {
			s.LastBrokerTime = status.BrokerTime
		}
		if !s.Status.CanTransition(next) {
			return nil
		}
		s.Status = next
		s.PendingReconcile = false
		if next == orderv1.StatusRejected {
			s.RejectReason = status.Reason
		}
		return nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "oms_id", Value: omsID},
		)
		return
	}

	e.journal.Record(ctx, journalv1.Event{
		Kind:       journalv1.KindStatus,
		OMSID:      omsID,
		Symbol:     updated.Order.Symbol,
		BrokerTime: status.BrokerTime,
		LocalTime:  event.LocalTime,
		Detail: map[string]any{
			"status": string(updated.Status),
			"reason": status.Reason,
		},
	})

	if updated.Status == orderv1.StatusRejected &&
		e.flattenOnReject &&
		updated.Order.FlattenReason == "" {
		// Rejections of flatten orders never re-trigger a flatten, the
		// tag breaks the recursion.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if residual, err := e.FlattenAll(e.ctx, flattenReasonReject); err != nil {
				e.logger.Error(errors.TracerFromError(err),
					logger.Field{Key: "action", Value: "flatten_on_reject"},
					logger.Field{Key: "residual_symbols", Value: residual},
				)
			}
		}()
	}
}

func (e *Engine) handleFillEvent(ctx context.Context, event connectorv1.Event) {
	fillEvent := event.Fill
	if fillEvent == nil {
		return
	}

	e.clock.Observe(fillEvent.BrokerTime, event.LocalTime)

	state, err := e.store.FindByBroker(ctx, fillEvent.Ref)
	if err != nil {
		// A fill for an order the engine never placed. Reconciliation
		// synthesizes exactly one recovered order for it.
		e.logger.Warn("fill for unknown broker reference",
			logger.Field{Key: "broker_ref", Value: fillEvent.Ref.Key()},
			logger.Field{Key: "execution_id", Value: fillEvent.ExecutionID},
		)
		e.triggerReconcile()
		return
	}

	omsID := state.Order.OMSID
	fill := orderv1.Fill{
		ExecutionID: fillEvent.ExecutionID,
		OMSID:       omsID,
		Symbol:      fillEvent.Symbol,
		Side:        fillEvent.Side,
		Quantity:    fillEvent.Quantity,
		Price:       fillEvent.Price,
		BrokerTime:  fillEvent.BrokerTime,
		LocalTime:   event.LocalTime,
	}

	accepted := false
	updated, err := e.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
		var applyErr error
		accepted, applyErr = e.aggregator.Apply(s, fill)
		return applyErr
	})
	if err != nil {
		e.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "oms_id", Value: omsID},
			logger.Field{Key: "execution_id", Value: fillEvent.ExecutionID},
		)
		e.journal.Record(ctx, journalv1.Event{
			Kind:       journalv1.KindFill,
			OMSID:      omsID,
			Symbol:     fillEvent.Symbol,
			BrokerTime: fillEvent.BrokerTime,
			LocalTime:  event.LocalTime,
			Detail: map[string]any{
				"execution_id": fillEvent.ExecutionID,
				"dropped":      "invalid_fill",
				"error":        err.Error(),
			},
		})
		return
	}

	if !accepted {
		// Duplicate delivery. Dropping it silently would hide the mismatch,
		// so the drop itself goes on the record.
		e.journal.Record(ctx, journalv1.Event{
			Kind:       journalv1.KindFill,
			OMSID:      omsID,
			Symbol:     fillEvent.Symbol,
			BrokerTime: fillEvent.BrokerTime,
			LocalTime:  event.LocalTime,
			Detail: map[string]any{
				"execution_id": fillEvent.ExecutionID,
				"dropped":      "duplicate_execution",
			},
		})
		return
	}

	e.journal.Record(ctx, journalv1.Event{
		Kind:       journalv1.KindFill,
		OMSID:      omsID,
		Symbol:     fillEvent.Symbol,
		BrokerTime: fillEvent.BrokerTime,
		LocalTime:  event.LocalTime,
		Detail: map[string]any{
			"execution_id":    fillEvent.ExecutionID,
			"quantity":        fillEvent.Quantity,
			"price":           fillEvent.Price,
			"filled_quantity": updated.FilledQuantity,
			"avg_fill_price":  updated.AvgFillPrice,
			"status":          string(updated.Status),
		},
	})
}

// reconcileLoop runs periodic and on-demand reconciliation passes, and
// sweeps expired terminal orders after each pass.
func (e *Engine) reconcileLoop() {
	defer e.wg.Done()

	interval := e.cfg.Engine.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runReconcile()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runReconcile()
		case <-e.reconcileNow:
			e.runReconcile()
		}
	}
}

func (e *Engine) runReconcile() {
	if err := e.reconciler.Run(e.ctx); err != nil {
		e.logger.Error(errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "reconcile"},
		)
		return
	}

	if retention := e.cfg.Engine.RecoveredRetention; retention > 0 {
		e.store.SweepTerminal(e.ctx, time.Now().Add(-retention))
	}
}

// snapshotLoop periodically persists the advisory position snapshot.
func (e *Engine) snapshotLoop() {
	defer e.wg.Done()

	interval := e.cfg.Engine.SnapshotInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			snap := &snapshot.Snapshot{
				Account:   e.cfg.Engine.Account,
				Positions: e.Positions(e.ctx),
				TakenAt:   time.Now(),
			}
			if err := e.snapshots.Save(e.ctx, snap); err != nil {
				e.logger.Error(errors.TracerFromError(err),
					logger.Field{Key: "action", Value: "save_snapshot"},
				)
			}
		}
	}
}

// triggerReconcile requests an immediate reconciliation pass. Coalesces, a
// pending request is enough.
func (e *Engine) triggerReconcile() {
	select {
	case e.reconcileNow <- struct{}{}:
	default:
	}
}
