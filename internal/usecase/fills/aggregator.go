package fills

import (
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
)

// Aggregator folds execution reports into order state. Fills are deduped by
// execution id, so applying the same report any number of times, in any
// order, converges to the same totals.
type Aggregator struct {
	logger logger.Interface
}

// NewAggregator creates a new fill aggregator.
func NewAggregator(log logger.Interface) *Aggregator {
	return &Aggregator{logger: log}
}

// Apply validates a fill and folds it into state. It returns false when the
// fill is a duplicate of one already applied. Totals are recomputed from the
// full distinct fill set on every accepted fill, never incrementally, so a
// replayed or reordered stream cannot drift the average price.
func (a *Aggregator) Apply(state *orderv1.OrderState, fill orderv1.Fill) (bool, error) {
	if fill.ExecutionID == "" {
		return false, errors.TracerFromError(errors.NewErrorDetails(
			"fill execution id is required",
			string(errors.FillDuplicateExecution),
			"execution_id",
		))
	}
	if fill.Quantity <= 0 {
		return false, errors.TracerFromError(errors.NewErrorDetailsWithObject(
			"fill quantity must be positive",
			string(errors.FillInvalidQuantity),
			"quantity",
			fill,
		))
	}
	if fill.Price <= 0 {
		return false, errors.TracerFromError(errors.NewErrorDetailsWithObject(
			"fill price must be positive",
			string(errors.FillInvalidPrice),
			"price",
			fill,
		))
	}

	for _, existing := range state.Fills {
		if existing.ExecutionID == fill.ExecutionID {
			a.logger.Debug("duplicate fill ignored",
				logger.Field{Key: "oms_id", Value: state.Order.OMSID},
				logger.Field{Key: "execution_id", Value: fill.ExecutionID},
			)
			return false, nil
		}
	}

	state.Fills = append(state.Fills, fill)
	if fill.BrokerTime.After(state.LastBrokerTime) {
		state.LastBrokerTime = fill.BrokerTime
	}
	recompute(state)
	advanceStatus(state)

	return true, nil
}

// recompute rebuilds the filled quantity and volume weighted average price
// from the distinct fill set.
func recompute(state *orderv1.OrderState) {
	var qty, notional float64
	for _, f := range state.Fills {
		qty += f.Quantity
		notional += f.Quantity * f.Price
	}
	state.FilledQuantity = qty
	if qty > 0 {
		state.AvgFillPrice = notional / qty
	} else {
		state.AvgFillPrice = 0
	}
}

// advanceStatus moves the status forward based on fill totals. Fills are
// authoritative: a complete fill forces FILLED even when the order was
// locally CANCELED, because the executions already happened at the broker.
func advanceStatus(state *orderv1.OrderState) {
	if state.FilledQuantity >= state.Order.Quantity {
		state.Status = orderv1.StatusFilled
		return
	}
	if state.FilledQuantity > 0 && !state.Status.IsTerminal() {
		state.Status = orderv1.StatusPartiallyFilled
	}
}
