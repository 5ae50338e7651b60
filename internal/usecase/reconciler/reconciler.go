package reconciler

import (
	"context"
	"time"

	connectorv1 "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1"
	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/brokerclock"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/fills"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
)

// Reconciler compares local order state against the broker's view and
// resolves every divergence in the broker's favor. It is the only component
// allowed to settle orders whose transport outcome is unknown, the engine
// itself never retries a failed submit or cancel.
type Reconciler struct {
	store      orderv1.Store
	connector  connectorv1.Connector
	clock      *brokerclock.Clock
	aggregator *fills.Aggregator
	journal    journalv1.Journal
	logger     logger.Interface

	// staleAfter bounds how long an unbound order may wait for broker
	// evidence before a pass declares it dead.
	staleAfter time.Duration

	nowFn func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(
	store orderv1.Store,
	connector connectorv1.Connector,
	clock *brokerclock.Clock,
	aggregator *fills.Aggregator,
	journal journalv1.Journal,
	log logger.Interface,
	staleAfter time.Duration,
) *Reconciler {
	return &Reconciler{
		store:      store,
		connector:  connector,
		clock:      clock,
		aggregator: aggregator,
		journal:    journal,
		logger:     log,
		staleAfter: staleAfter,
		nowFn:      time.Now,
	}
}

// Run executes one reconciliation pass. A query failure aborts the pass
// without touching local state, a partial view must never cancel orders
// that are still alive at the broker.
func (r *Reconciler) Run(ctx context.Context) error {
	openOrders, err := r.connector.QueryOpenOrders(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "query_open_orders"},
		)
		return errors.TracerFromError(errors.NewErrorDetails(
			"failed to query broker open orders",
			string(errors.ConnectorQueryError),
			"open_orders",
		))
	}

	executions, err := r.connector.RecentExecutions(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "query_recent_executions"},
		)
		return errors.TracerFromError(errors.NewErrorDetails(
			"failed to query broker executions",
			string(errors.ConnectorQueryError),
			"executions",
		))
	}

	r.backfillExecutions(ctx, executions)
	r.adoptUnknownOpenOrders(ctx, openOrders)
	r.settleMissingLocals(ctx, openOrders)
	r.adoptBrokerProgress(ctx, openOrders)

	return nil
}

// backfillExecutions replays broker executions through the aggregator.
// Known orders dedupe duplicates, executions for unknown orders get a
// synthesized recovered order each, one per broker reference.
func (r *Reconciler) backfillExecutions(ctx context.Context, executions []connectorv1.Execution) {
	for _, exec := range executions {
		state, err := r.store.FindByBroker(ctx, exec.Ref)
		if err != nil {
			if errors.ErrorCodeEquals(err, errors.OrderNotFound) {
				r.synthesizeOrphanOrder(ctx, exec)
				continue
			}
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "find_by_broker"},
			)
			continue
		}

		r.applyExecution(ctx, state.Order.OMSID, exec)
	}
}

// synthesizeOrphanOrder creates a recovered order for a fill the engine has
// no record of. The order is sized to the execution so it lands FILLED, a
// later execution for the same broker reference folds into the same order
// through the broker index.
func (r *Reconciler) synthesizeOrphanOrder(ctx context.Context, exec connectorv1.Execution) {
	omsID := orderv1.NewOMSID()
	now := r.nowFn()

	state := &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:     omsID,
			Symbol:    exec.Symbol,
			Side:      exec.Side,
			Type:      orderv1.TypeMarket,
			Quantity:  exec.Quantity,
			CreatedAt: now,
		},
		BrokerRef: exec.Ref,
		Status:    orderv1.StatusNew,
		Recovered: true,
	}

	if err := r.store.Create(ctx, state); err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "create_recovered_order"},
		)
		return
	}

	r.journal.Record(ctx, journalv1.Event{
		Kind:       journalv1.KindOrphanFill,
		OMSID:      omsID,
		Symbol:     exec.Symbol,
		BrokerTime: exec.BrokerTime,
		Detail: map[string]any{
			"execution_id": exec.ExecutionID,
			"broker_ref":   exec.Ref.Key(),
			"quantity":     exec.Quantity,
			"price":        exec.Price,
		},
	})

	r.applyExecution(ctx, omsID, exec)
}

func (r *Reconciler) applyExecution(ctx context.Context, omsID string, exec connectorv1.Execution) {
	fill := orderv1.Fill{
		ExecutionID: exec.ExecutionID,
		OMSID:       omsID,
		Symbol:      exec.Symbol,
		Side:        exec.Side,
		Quantity:    exec.Quantity,
		Price:       exec.Price,
		BrokerTime:  exec.BrokerTime,
		LocalTime:   r.clock.Normalize(exec.BrokerTime),
	}

	accepted := false
	_, err := r.store.Update(ctx, omsID, func(state *orderv1.OrderState) error {
		var applyErr error
		accepted, applyErr = r.aggregator.Apply(state, fill)
		return applyErr
	})
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "backfill_execution"},
			logger.Field{Key: "oms_id", Value: omsID},
		)
		r.journal.Record(ctx, journalv1.Event{
			Kind:       journalv1.KindFill,
			OMSID:      omsID,
			Symbol:     exec.Symbol,
			BrokerTime: exec.BrokerTime,
			Detail: map[string]any{
				"execution_id": exec.ExecutionID,
				"dropped":      "invalid_fill",
				"error":        err.Error(),
				"source":       "reconcile_backfill",
			},
		})
		return
	}

	if accepted {
		r.journal.Record(ctx, journalv1.Event{
			Kind:       journalv1.KindFill,
			OMSID:      omsID,
			Symbol:     exec.Symbol,
			BrokerTime: exec.BrokerTime,
			Detail: map[string]any{
				"execution_id": exec.ExecutionID,
				"quantity":     exec.Quantity,
				"price":        exec.Price,
				"source":       "reconcile_backfill",
			},
		})
		return
	}

	r.journal.Record(ctx, journalv1.Event{
		Kind:       journalv1.KindFill,
		OMSID:      omsID,
		Symbol:     exec.Symbol,
		BrokerTime: exec.BrokerTime,
		Detail: map[string]any{
			"execution_id": exec.ExecutionID,
			"dropped":      "duplicate_execution",
			"source":       "reconcile_backfill",
		},
	})
}

// adoptUnknownOpenOrders synthesizes recovered local state for orders the
// broker is working that the engine has no record of, e.g. orders placed
// before a restart or from another session.
func (r *Reconciler) adoptUnknownOpenOrders(ctx context.Context, openOrders []connectorv1.OpenOrder) {
	for _, oo := range openOrders {
		if _, err := r.store.FindByBroker(ctx, oo.Ref); err == nil {
			continue
		} else if !errors.ErrorCodeEquals(err, errors.OrderNotFound) {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "find_by_broker"},
			)
			continue
		}

		if r.adoptPendingSubmit(ctx, oo) {
			continue
		}

		omsID := orderv1.NewOMSID()
		status := oo.Status
		if status == "" {
			status = orderv1.StatusWorking
		}

		state := &orderv1.OrderState{
			Order: orderv1.Order{
				OMSID:      omsID,
				Symbol:     oo.Symbol,
				Side:       oo.Side,
				Type:       orderTypeFor(oo),
				Quantity:   oo.Quantity,
				LimitPrice: oo.LimitPrice,
				CreatedAt:  r.nowFn(),
			},
			BrokerRef: oo.Ref,
			Status:    status,
			Recovered: true,
		}

		if err := r.store.Create(ctx, state); err != nil {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "adopt_open_order"},
			)
			continue
		}

		r.journal.Record(ctx, journalv1.Event{
			Kind:       journalv1.KindReconcile,
			OMSID:      omsID,
			Symbol:     oo.Symbol,
			BrokerTime: oo.BrokerTime,
			Detail: map[string]any{
				"action":     "adopted_unknown_open_order",
				"broker_ref": oo.Ref.Key(),
				"status":     string(status),
				"quantity":   oo.Quantity,
			},
		})
	}
}

// adoptPendingSubmit tries to match a broker open order against a local
// order whose submit transport failed before a broker reference came back.
// A match binds the reference and clears the ambiguity.
func (r *Reconciler) adoptPendingSubmit(ctx context.Context, oo connectorv1.OpenOrder) bool {
	for _, state := range r.store.Open(ctx) {
		if !state.PendingReconcile || !state.BrokerRef.Empty() {
			continue
		}
		if state.Order.Symbol != oo.Symbol ||
			state.Order.Side != oo.Side ||
			state.Order.Quantity != oo.Quantity {
			continue
		}

		if err := r.store.Bind(ctx, state.Order.OMSID, oo.Ref); err != nil {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "bind_pending_submit"},
			)
			return false
		}

		omsID := state.Order.OMSID
		_, err := r.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
			s.PendingReconcile = false
			if s.Status.CanTransition(orderv1.StatusWorking) {
				s.Status = orderv1.StatusWorking
			}
			return nil
		})
		if err != nil {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "resolve_pending_submit"},
			)
		}

		r.journal.Record(ctx, journalv1.Event{
			Kind:   journalv1.KindReconcile,
			OMSID:  omsID,
			Symbol: oo.Symbol,
			Detail: map[string]any{
				"action":     "resolved_pending_submit",
				"broker_ref": oo.Ref.Key(),
			},
		})
		return true
	}
	return false
}

// settleMissingLocals resolves local open orders the broker is not working.
// Bound orders are canceled, the broker dropped them. Unbound orders past
// the staleness threshold are rejected, the submit evidently never landed.
func (r *Reconciler) settleMissingLocals(ctx context.Context, openOrders []connectorv1.OpenOrder) {
	brokerKeys := make(map[string]struct{}, len(openOrders))
	for _, oo := range openOrders {
		for _, key := range oo.Ref.Keys() {
			brokerKeys[key] = struct{}{}
		}
	}

	now := r.nowFn()
	for _, state := range r.store.Open(ctx) {
		if state.BrokerRef.Empty() {
			if state.PendingReconcile && now.Sub(r.lastEvidence(state)) > r.staleAfter {
				r.settle(ctx, state.Order.OMSID, orderv1.StatusRejected, "no broker record after submit")
			}
			continue
		}

		// The broker's listing may carry only one of the two identities the
		// local reference holds, a miss on one key is not a miss on the order.
		working := false
		for _, key := range state.BrokerRef.Keys() {
			if _, ok := brokerKeys[key]; ok {
				working = true
				break
			}
		}
		if working {
			continue
		}

		// Not open at the broker. Fills already backfilled this pass, so
		// whatever quantity remains will never execute.
		r.settle(ctx, state.Order.OMSID, orderv1.StatusCanceled, "not open at broker")
	}
}

// lastEvidence returns the most recent moment the order is known to have
// existed, preferring broker time normalized to the local clock over the
// local creation time.
func (r *Reconciler) lastEvidence(state *orderv1.OrderState) time.Time {
	if !state.LastBrokerTime.IsZero() {
		return r.clock.Normalize(state.LastBrokerTime)
	}
	return state.CreatedAt
}

func (r *Reconciler) settle(ctx context.Context, omsID string, status orderv1.Status, reason string) {
	updated, err := r.store.Update(ctx, omsID, func(state *orderv1.OrderState) error {
		if state.Status.IsTerminal() {
			return nil
		}
		// A NEW order cannot cancel and a PARTIALLY_FILLED one cannot
		// reject, pick whichever terminal the lattice allows from here.
		if !state.Status.CanTransition(status) {
			switch status {
			case orderv1.StatusRejected:
				status = orderv1.StatusCanceled
			case orderv1.StatusCanceled:
				status = orderv1.StatusRejected
			}
		}
		state.Status = status
		state.PendingReconcile = false
		if status == orderv1.StatusRejected {
			state.RejectReason = reason
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err),
			logger.Field{Key: "action", Value: "settle_missing_order"},
			logger.Field{Key: "oms_id", Value: omsID},
		)
		return
	}

	r.journal.Record(ctx, journalv1.Event{
		Kind:   journalv1.KindReconcile,
		OMSID:  omsID,
		Symbol: updated.Order.Symbol,
		Detail: map[string]any{
			"action": "settled_missing_order",
			"status": string(updated.Status),
			"reason": reason,
		},
	})
}

// adoptBrokerProgress pushes broker-reported status forward onto bound
// local orders. The broker wins every disagreement, but status text never
// outranks fills, so only forward transitions apply.
func (r *Reconciler) adoptBrokerProgress(ctx context.Context, openOrders []connectorv1.OpenOrder) {
	for _, oo := range openOrders {
		state, err := r.store.FindByBroker(ctx, oo.Ref)
		if err != nil {
			continue
		}

		if oo.Status == "" || !state.Status.CanTransition(oo.Status) {
			continue
		}

		omsID := state.Order.OMSID
		_, err = r.store.Update(ctx, omsID, func(s *orderv1.OrderState) error {
			if oo.BrokerTime.After(s.LastBrokerTime) {
				s.LastBrokerTime = oo.BrokerTime
			}
			if s.Status.CanTransition(oo.Status) {
				s.Status = oo.Status
				s.PendingReconcile = false
			}
			return nil
		})
		if err != nil {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err),
				logger.Field{Key: "action", Value: "adopt_broker_status"},
				logger.Field{Key: "oms_id", Value: omsID},
			)
		}
	}
}

// orderTypeFor infers the type of an adopted order from its broker view.
func orderTypeFor(oo connectorv1.OpenOrder) orderv1.Type {
	if oo.LimitPrice > 0 {
		return orderv1.TypeLimit
	}
	return orderv1.TypeMarket
}
