package engine

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	connectorv1 "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1"
	connectormock "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1/mock"
	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/brokerclock"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/fills"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/journal"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/orderstore"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/reconciler"
	"github.com/muhammadchandra19/execution-engine/pkg/config"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	ctrl          *gomock.Controller
	mockConnector *connectormock.MockConnector
	store         *orderstore.Store
	recorder      *journal.Recorder
	logger        *logger.Logger
	config        *config.Config
}

func setupTestFixture(t *testing.T) *testFixture {
	ctrl := gomock.NewController(t)

	log, err := logger.NewLogger()
	require.NoError(t, err)

	return &testFixture{
		ctrl:          ctrl,
		mockConnector: connectormock.NewMockConnector(ctrl),
		store:         orderstore.NewStore(log),
		recorder:      journal.NewRecorder(log, 256),
		logger:        log,
		config: &config.Config{
			Engine: config.EngineConfig{
				Account:            "DU12345",
				StaleAfter:         time.Minute,
				RecoveredRetention: time.Hour,
				ReconcileInterval:  30 * time.Second,
				SnapshotInterval:   10 * time.Second,
				EventBufferSize:    64,
				ShutdownTimeout:    5 * time.Second,
			},
		},
	}
}

func (f *testFixture) teardown() {
	f.ctrl.Finish()
}

// createTestEngine builds an engine with an initialized context so event
// handlers can run without the loops started.
func createTestEngine(f *testFixture, opts ...Option) *Engine {
	aggregator := fills.NewAggregator(f.logger)
	clock := brokerclock.NewClock()
	recon := reconciler.NewReconciler(
		f.store, f.mockConnector, clock, aggregator, f.recorder, f.logger, f.config.Engine.StaleAfter,
	)

	e := NewEngine(
		f.store,
		f.mockConnector,
		aggregator,
		clock,
		f.recorder,
		recon,
		f.logger,
		f.config,
		opts...,
	)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

func limitOrder(symbol string, side orderv1.Side, qty, price float64) *orderv1.Order {
	return &orderv1.Order{
		Symbol:     symbol,
		Side:       side,
		Type:       orderv1.TypeLimit,
		Quantity:   qty,
		LimitPrice: price,
	}
}

func statusEvent(ref orderv1.BrokerRef, status orderv1.Status, reason string) connectorv1.Event {
	return connectorv1.Event{
		Type: connectorv1.EventStatus,
		Status: &connectorv1.StatusEvent{
			Ref:        ref,
			Status:     status,
			Reason:     reason,
			BrokerTime: time.Now(),
		},
		LocalTime: time.Now(),
	}
}

func fillEvent(ref orderv1.BrokerRef, execID string, qty, price float64) connectorv1.Event {
	return connectorv1.Event{
		Type: connectorv1.EventFill,
		Fill: &connectorv1.FillEvent{
			Ref:         ref,
			ExecutionID: execID,
			Symbol:      "AAPL",
			Side:        orderv1.SideBuy,
			Quantity:    qty,
			Price:       price,
			BrokerTime:  time.Now(),
		},
		LocalTime: time.Now(),
	}
}

func TestSubmit_BindsBrokerRef(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{PermID: "perm-1", OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	require.NotEmpty(t, omsID)

	state, err := f.store.Get(ctx, omsID)
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusNew, state.Status)
	assert.Equal(t, ref.Key(), state.BrokerRef.Key())
	assert.Equal(t, "DU12345", state.Order.Account)
}

func TestSubmit_Validation(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	e := createTestEngine(f)

	// No connector call for an invalid order.
	_, err := e.Submit(context.Background(), limitOrder("AAPL", orderv1.SideBuy, 0, 100.00))
	require.Error(t, err)
	assert.Empty(t, f.store.All(context.Background()))
}

func TestSubmit_TransportFailureFlagsReconcileNoRetry(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	// Exactly one transport attempt, never a retry.
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{}, assertAnError()).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, errors.ConnectorSubmitError))
	require.NotEmpty(t, omsID)

	state, getErr := f.store.Get(ctx, omsID)
	require.NoError(t, getErr)
	assert.Equal(t, orderv1.StatusNew, state.Status)
	assert.True(t, state.PendingReconcile)
	assert.True(t, state.BrokerRef.Empty())
}

// Scenario: a duplicated partial fill followed by the completing fill.
func TestFillEvents_DedupAndComplete(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{PermID: "perm-1", OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)

	e.applyEvent(statusEvent(ref, orderv1.StatusWorking, ""))
	e.applyEvent(fillEvent(ref, "exec-1", 40, 100.00))
	e.applyEvent(fillEvent(ref, "exec-1", 40, 100.00)) // duplicate delivery
	e.applyEvent(fillEvent(ref, "exec-2", 60, 100.05))

	state, err := f.store.Get(ctx, omsID)
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusFilled, state.Status)
	assert.InDelta(t, 100.0, state.FilledQuantity, 1e-9)
	assert.InDelta(t, 100.03, state.AvgFillPrice, 1e-9)
	assert.Len(t, state.Fills, 2)
}

func TestFillEvents_DuplicateDropGoesOnRecord(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)

	e.applyEvent(fillEvent(ref, "exec-1", 40, 100.00))
	e.applyEvent(fillEvent(ref, "exec-1", 40, 100.00)) // duplicate delivery

	// The drop is not silent, the journal carries a retrievable record of it.
	var droppedEvents int
	for _, ev := range f.recorder.Recent(32) {
		if ev.Kind == journalv1.KindFill && ev.OMSID == omsID &&
			ev.Detail["dropped"] == "duplicate_execution" {
			droppedEvents++
		}
	}
	assert.Equal(t, 1, droppedEvents)
}

// Scenario: cancel requested, then the full fill arrives anyway.
func TestCancel_LosesToFill(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{PermID: "perm-1", OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)
	f.mockConnector.EXPECT().
		CancelOrder(gomock.Any(), gomock.Any()).
		Return(nil).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(statusEvent(ref, orderv1.StatusWorking, ""))

	requested, err := e.Cancel(ctx, omsID)
	require.NoError(t, err)
	assert.True(t, requested)

	// The fill raced the cancel and wins.
	e.applyEvent(fillEvent(ref, "exec-1", 100, 100.00))

	state, err := f.store.Get(ctx, omsID)
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusFilled, state.Status)
	assert.True(t, state.CancelRequested)
}

func TestCancel_TerminalOrderIsNoOp(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	require.NoError(t, f.store.Create(ctx, &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:    "oms-done",
			Symbol:   "AAPL",
			Side:     orderv1.SideBuy,
			Type:     orderv1.TypeMarket,
			Quantity: 10,
		},
		Status: orderv1.StatusFilled,
	}))

	// CancelOrder must not be called at all.
	f.mockConnector.EXPECT().CancelOrder(gomock.Any(), gomock.Any()).Times(0)

	requested, err := e.Cancel(ctx, "oms-done")
	require.NoError(t, err)
	assert.False(t, requested)
}

func TestCancel_TransportFailureFlagsReconcile(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)
	f.mockConnector.EXPECT().
		CancelOrder(gomock.Any(), gomock.Any()).
		Return(assertAnError()).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(statusEvent(ref, orderv1.StatusWorking, ""))

	requested, err := e.Cancel(ctx, omsID)
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, errors.ConnectorCancelError))
	assert.False(t, requested)

	state, getErr := f.store.Get(ctx, omsID)
	require.NoError(t, getErr)
	assert.True(t, state.PendingReconcile)
}

func TestStatusEvent_FilledTextWithMissingFillsDefersToReconcile(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)

	omsID, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(statusEvent(ref, orderv1.StatusWorking, ""))

	// FILLED status text with no fills applied yet: the text does not win,
	// the order is flagged for reconciliation instead.
	e.applyEvent(statusEvent(ref, orderv1.StatusFilled, ""))

	state, err := f.store.Get(ctx, omsID)
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusWorking, state.Status)
	assert.True(t, state.PendingReconcile)
}

func TestPositions_DerivedFromFills(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref1 := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	ref2 := orderv1.BrokerRef{OrderID: "2", SessionDate: "2025-06-02"}

	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref1}, nil).
		Times(1)
	_, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)

	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref2}, nil).
		Times(1)
	_, err = e.Submit(ctx, limitOrder("AAPL", orderv1.SideSell, 30, 101.00))
	require.NoError(t, err)

	e.applyEvent(fillEvent(ref1, "exec-1", 100, 100.00))

	sell := fillEvent(ref2, "exec-2", 30, 101.00)
	sell.Fill.Side = orderv1.SideSell
	e.applyEvent(sell)

	positions := e.Positions(ctx)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.InDelta(t, 70.0, positions[0].Quantity, 1e-9)
	// Volume weighted over both fills: (100*100.00 + 30*101.00) / 130.
	assert.InDelta(t, 13030.0/130.0, positions[0].AvgCost, 1e-9)
}

func TestFlattenAll_ClosesPositionsWithTaggedOrders(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	ref := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: ref}, nil).
		Times(1)
	_, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(fillEvent(ref, "exec-1", 100, 100.00))

	flattenRef := orderv1.BrokerRef{OrderID: "2", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *orderv1.Order) (connectorv1.SubmitResult, error) {
			assert.Equal(t, orderv1.SideSell, order.Side)
			assert.Equal(t, orderv1.TypeMarket, order.Type)
			assert.InDelta(t, 100.0, order.Quantity, 1e-9)
			assert.Equal(t, "risk_breach", order.FlattenReason)
			return connectorv1.SubmitResult{Ref: flattenRef}, nil
		}).
		Times(1)

	residual, err := e.FlattenAll(ctx, "risk_breach")
	require.NoError(t, err)
	assert.Empty(t, residual)
}

func TestFlattenAll_ReportsResidualSymbols(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f)

	// Two open positions on different symbols.
	refAAPL := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: refAAPL}, nil).
		Times(1)
	_, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(fillEvent(refAAPL, "exec-1", 100, 100.00))

	refMSFT := orderv1.BrokerRef{OrderID: "2", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: refMSFT}, nil).
		Times(1)
	_, err = e.Submit(ctx, limitOrder("MSFT", orderv1.SideBuy, 50, 400.00))
	require.NoError(t, err)
	msftFill := fillEvent(refMSFT, "exec-2", 50, 400.00)
	msftFill.Fill.Symbol = "MSFT"
	e.applyEvent(msftFill)

	// The AAPL offset lands, the MSFT offset fails in transport. The caller
	// gets the still-exposed symbol back for escalation.
	flattenRef := orderv1.BrokerRef{OrderID: "3", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *orderv1.Order) (connectorv1.SubmitResult, error) {
			if order.Symbol == "MSFT" {
				return connectorv1.SubmitResult{}, assertAnError()
			}
			return connectorv1.SubmitResult{Ref: flattenRef}, nil
		}).
		Times(2)

	residual, err := e.FlattenAll(ctx, "risk_breach")
	require.Error(t, err)
	assert.Equal(t, []string{"MSFT"}, residual)
}

func TestRejection_TriggersFlattenOnceOnly(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()
	e := createTestEngine(f, WithFlattenOnReject())

	// Open a position so the flatten has something to close.
	posRef := orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: posRef}, nil).
		Times(1)
	_, err := e.Submit(ctx, limitOrder("AAPL", orderv1.SideBuy, 100, 100.00))
	require.NoError(t, err)
	e.applyEvent(fillEvent(posRef, "exec-1", 100, 100.00))

	// A plain order gets rejected: exactly one flatten submit follows.
	rejectedRef := orderv1.BrokerRef{OrderID: "2", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		Return(connectorv1.SubmitResult{Ref: rejectedRef}, nil).
		Times(1)
	_, err = e.Submit(ctx, limitOrder("MSFT", orderv1.SideBuy, 10, 400.00))
	require.NoError(t, err)
	e.applyEvent(statusEvent(rejectedRef, orderv1.StatusWorking, ""))

	flattenRef := orderv1.BrokerRef{OrderID: "3", SessionDate: "2025-06-02"}
	f.mockConnector.EXPECT().
		SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order *orderv1.Order) (connectorv1.SubmitResult, error) {
			assert.Equal(t, flattenReasonReject, order.FlattenReason)
			return connectorv1.SubmitResult{Ref: flattenRef}, nil
		}).
		Times(1)

	e.applyEvent(statusEvent(rejectedRef, orderv1.StatusRejected, "margin"))
	e.wg.Wait()

	// The flatten order itself gets rejected: no further flatten submit,
	// the tag breaks the recursion.
	e.applyEvent(statusEvent(flattenRef, orderv1.StatusWorking, ""))
	e.applyEvent(statusEvent(flattenRef, orderv1.StatusRejected, "margin"))
	e.wg.Wait()
}

func assertAnError() error {
	return context.DeadlineExceeded
}
