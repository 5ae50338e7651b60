package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	connectorv1 "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1"
	connectormock "github.com/muhammadchandra19/execution-engine/internal/domain/connector/v1/mock"
	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/brokerclock"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/fills"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/journal"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/orderstore"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	ctrl          *gomock.Controller
	mockConnector *connectormock.MockConnector
	store         *orderstore.Store
	recorder      *journal.Recorder
	reconciler    *Reconciler
}

func setupTestFixture(t *testing.T) *testFixture {
	ctrl := gomock.NewController(t)

	log, err := logger.NewLogger()
	require.NoError(t, err)

	mockConnector := connectormock.NewMockConnector(ctrl)
	store := orderstore.NewStore(log)
	recorder := journal.NewRecorder(log, 64)
	aggregator := fills.NewAggregator(log)
	clock := brokerclock.NewClock()

	recon := NewReconciler(store, mockConnector, clock, aggregator, recorder, log, time.Minute)

	return &testFixture{
		ctrl:          ctrl,
		mockConnector: mockConnector,
		store:         store,
		recorder:      recorder,
		reconciler:    recon,
	}
}

func (f *testFixture) teardown() {
	f.ctrl.Finish()
}

func workingOrder(t *testing.T, f *testFixture, omsID string, ref orderv1.BrokerRef) {
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:    omsID,
			Symbol:   "AAPL",
			Side:     orderv1.SideBuy,
			Type:     orderv1.TypeLimit,
			Quantity: 100,
		},
		Status: orderv1.StatusWorking,
	}))
	if !ref.Empty() {
		require.NoError(t, f.store.Bind(ctx, omsID, ref))
	}
}

func TestRun_QueryFailureLeavesStateUntouched(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	workingOrder(t, f, "oms-1", orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"})

	f.mockConnector.EXPECT().
		QueryOpenOrders(gomock.Any()).
		Return(nil, assertAnError()).
		Times(1)

	err := f.reconciler.Run(ctx)
	require.Error(t, err)

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusWorking, state.Status)
}

func TestRun_ZeroOpenOrdersCancelsBoundLocals(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	workingOrder(t, f, "oms-1", orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"})

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(nil, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusCanceled, state.Status)
	assert.False(t, state.PendingReconcile)
}

func TestRun_AdoptsUnknownOpenOrder(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	// Restart scenario: the broker is working an order the engine has no
	// record of.
	external := connectorv1.OpenOrder{
		Ref:        orderv1.BrokerRef{PermID: "perm-9", OrderID: "9", SessionDate: "2025-06-02"},
		Symbol:     "MSFT",
		Side:       orderv1.SideSell,
		Quantity:   50,
		LimitPrice: 430.00,
		Status:     orderv1.StatusWorking,
		BrokerTime: time.Now(),
	}

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return([]connectorv1.OpenOrder{external}, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.FindByBroker(ctx, external.Ref)
	require.NoError(t, err)
	assert.True(t, state.Recovered)
	assert.Equal(t, orderv1.StatusWorking, state.Status)
	assert.Equal(t, orderv1.TypeLimit, state.Order.Type)
	assert.InDelta(t, 50.0, state.Order.Quantity, 1e-9)

	// A second pass must not create a duplicate.
	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return([]connectorv1.OpenOrder{external}, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)
	require.NoError(t, f.reconciler.Run(ctx))

	recovered := 0
	for _, s := range f.store.All(ctx) {
		if s.Recovered {
			recovered++
		}
	}
	assert.Equal(t, 1, recovered)
}

func TestRun_OrphanExecutionsSynthesizeOneOrder(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	ref := orderv1.BrokerRef{OrderID: "77", SessionDate: "2025-06-02"}
	execs := []connectorv1.Execution{
		{Ref: ref, ExecutionID: "x-1", Symbol: "AAPL", Side: orderv1.SideBuy, Quantity: 40, Price: 100.00, BrokerTime: time.Now()},
		{Ref: ref, ExecutionID: "x-2", Symbol: "AAPL", Side: orderv1.SideBuy, Quantity: 60, Price: 100.05, BrokerTime: time.Now()},
	}

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(nil, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(execs, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	all := f.store.All(ctx)
	require.Len(t, all, 1)
	state := all[0]
	assert.True(t, state.Recovered)
	assert.Len(t, state.Fills, 2)
	assert.InDelta(t, 100.0, state.FilledQuantity, 1e-9)
	assert.InDelta(t, 100.03, state.AvgFillPrice, 1e-9)
}

func TestRun_BackfillDedupesKnownExecutions(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	ref := orderv1.BrokerRef{OrderID: "5", SessionDate: "2025-06-02"}
	workingOrder(t, f, "oms-1", ref)

	_, err := f.store.Update(ctx, "oms-1", func(s *orderv1.OrderState) error {
		s.Fills = append(s.Fills, orderv1.Fill{ExecutionID: "x-1", Symbol: "AAPL", Side: orderv1.SideBuy, Quantity: 40, Price: 100.00})
		s.FilledQuantity = 40
		s.AvgFillPrice = 100.00
		s.Status = orderv1.StatusPartiallyFilled
		return nil
	})
	require.NoError(t, err)

	execs := []connectorv1.Execution{
		{Ref: ref, ExecutionID: "x-1", Symbol: "AAPL", Side: orderv1.SideBuy, Quantity: 40, Price: 100.00},
		{Ref: ref, ExecutionID: "x-2", Symbol: "AAPL", Side: orderv1.SideBuy, Quantity: 60, Price: 100.05},
	}
	open := []connectorv1.OpenOrder{{
		Ref:      ref,
		Symbol:   "AAPL",
		Side:     orderv1.SideBuy,
		Quantity: 100,
		Status:   orderv1.StatusPartiallyFilled,
	}}

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(open, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(execs, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Len(t, state.Fills, 2)
	assert.InDelta(t, 100.0, state.FilledQuantity, 1e-9)
	assert.InDelta(t, 100.03, state.AvgFillPrice, 1e-9)
	assert.Equal(t, orderv1.StatusFilled, state.Status)
}

func TestRun_ResolvesPendingSubmit(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	// Submit transport failed before any broker reference came back.
	require.NoError(t, f.store.Create(ctx, &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:    "oms-1",
			Symbol:   "AAPL",
			Side:     orderv1.SideBuy,
			Type:     orderv1.TypeLimit,
			Quantity: 100,
		},
		Status:           orderv1.StatusNew,
		PendingReconcile: true,
	}))

	ref := orderv1.BrokerRef{OrderID: "3", SessionDate: "2025-06-02"}
	open := []connectorv1.OpenOrder{{
		Ref:      ref,
		Symbol:   "AAPL",
		Side:     orderv1.SideBuy,
		Quantity: 100,
		Status:   orderv1.StatusWorking,
	}}

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(open, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusWorking, state.Status)
	assert.False(t, state.PendingReconcile)
	assert.Equal(t, ref.Key(), state.BrokerRef.Key())
	assert.False(t, state.Recovered)

	// No duplicate adopted order.
	assert.Len(t, f.store.All(ctx), 1)
}

func TestRun_SessionOnlyListingKeepsPermBoundOrder(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	// Bound locally under both identities, but the broker's open-order
	// listing reports only the session-scoped id.
	fullRef := orderv1.BrokerRef{PermID: "perm-1", OrderID: "1", SessionDate: "2025-06-02"}
	workingOrder(t, f, "oms-1", fullRef)

	open := []connectorv1.OpenOrder{{
		Ref:      orderv1.BrokerRef{OrderID: "1", SessionDate: "2025-06-02"},
		Symbol:   "AAPL",
		Side:     orderv1.SideBuy,
		Quantity: 100,
		Status:   orderv1.StatusWorking,
	}}

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(open, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	// The order is alive at the broker, a partial identity match must not
	// settle it.
	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusWorking, state.Status)
}

func TestRun_RecentBrokerEvidenceDefersStaleness(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	require.NoError(t, f.store.Create(ctx, &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:     "oms-1",
			Symbol:    "AAPL",
			Side:      orderv1.SideBuy,
			Type:      orderv1.TypeLimit,
			Quantity:  100,
			CreatedAt: time.Now().Add(-time.Hour),
		},
		Status:           orderv1.StatusNew,
		PendingReconcile: true,
	}))
	_, err := f.store.Update(ctx, "oms-1", func(s *orderv1.OrderState) error {
		s.CreatedAt = time.Now().Add(-time.Hour)
		// Broker evidence is newer than the local creation time, the order
		// is not stale yet.
		s.LastBrokerTime = time.Now()
		return nil
	})
	require.NoError(t, err)

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(nil, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusNew, state.Status)
}

func TestRun_StaleUnboundOrderRejected(t *testing.T) {
	f := setupTestFixture(t)
	defer f.teardown()
	ctx := context.Background()

	require.NoError(t, f.store.Create(ctx, &orderv1.OrderState{
		Order: orderv1.Order{
			OMSID:     "oms-1",
			Symbol:    "AAPL",
			Side:      orderv1.SideBuy,
			Type:      orderv1.TypeLimit,
			Quantity:  100,
			CreatedAt: time.Now().Add(-time.Hour),
		},
		Status:           orderv1.StatusNew,
		PendingReconcile: true,
	}))
	// Creation timestamp predates the staleness threshold.
	_, err := f.store.Update(ctx, "oms-1", func(s *orderv1.OrderState) error {
		s.CreatedAt = time.Now().Add(-time.Hour)
		return nil
	})
	require.NoError(t, err)

	f.mockConnector.EXPECT().QueryOpenOrders(gomock.Any()).Return(nil, nil).Times(1)
	f.mockConnector.EXPECT().RecentExecutions(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, f.reconciler.Run(ctx))

	state, err := f.store.Get(ctx, "oms-1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusRejected, state.Status)
	assert.NotEmpty(t, state.RejectReason)
}

func assertAnError() error {
	return context.DeadlineExceeded
}
