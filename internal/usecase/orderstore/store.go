package orderstore

import (
	"context"
	"sync"
	"time"

	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
)

// entry pairs an order state with its own lock so updates to different
// orders never contend. The store map lock is only held to look entries up,
// never while an entry lock is held, except in Bind which needs to mutate
// the broker index and the entry atomically.
type entry struct {
	mu    sync.Mutex
	state *orderv1.OrderState
}

// Store is the in-memory authoritative order store.
type Store struct {
	mu       sync.RWMutex
	orders   map[string]*entry
	byBroker map[string]string
	logger   logger.Interface
	nowFn    func() time.Time
}

var _ orderv1.Store = (*Store)(nil)

// NewStore creates an empty order store.
func NewStore(log logger.Interface) *Store {
	return &Store{
		orders:   make(map[string]*entry),
		byBroker: make(map[string]string),
		logger:   log,
		nowFn:    time.Now,
	}
}

// Create admits a new order state under a fresh oms id.
func (s *Store) Create(ctx context.Context, state *orderv1.OrderState) error {
	if state.Order.OMSID == "" {
		return errors.TracerFromError(errors.NewErrorDetails(
			"order oms id is required",
			string(errors.GeneralBadRequestError),
			"oms_id",
		))
	}

	now := s.nowFn()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	if state.Status == "" {
		state.Status = orderv1.StatusNew
	}
	if state.Status.IsTerminal() && state.TerminalAt.IsZero() {
		state.TerminalAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[state.Order.OMSID]; ok {
		return errors.TracerFromError(errors.NewErrorDetails(
			"order id already exists",
			string(errors.OrderDuplicateID),
			"oms_id",
		))
	}

	s.orders[state.Order.OMSID] = &entry{state: state.Clone()}

	if !state.BrokerRef.Empty() {
		for _, key := range refKeys(state.BrokerRef) {
			s.byBroker[key] = state.Order.OMSID
		}
	}

	return nil
}

// Get returns a copy of the state for omsID.
func (s *Store) Get(ctx context.Context, omsID string) (*orderv1.OrderState, error) {
	e, err := s.lookup(omsID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// Update applies fn to the live state under the order's lock.
func (s *Store) Update(ctx context.Context, omsID string, fn func(*orderv1.OrderState) error) (*orderv1.OrderState, error) {
	e, err := s.lookup(omsID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wasTerminal := e.state.Status.IsTerminal()
	if err := fn(e.state); err != nil {
		return nil, err
	}

	e.state.UpdatedAt = s.nowFn()
	if !wasTerminal && e.state.Status.IsTerminal() && e.state.TerminalAt.IsZero() {
		e.state.TerminalAt = e.state.UpdatedAt
	}

	return e.state.Clone(), nil
}

// Bind associates a broker reference with an order. A reference key already
// bound to a different order is an error, a bound order only accepts the
// same identity again, possibly enriched with a perm id it was missing.
func (s *Store) Bind(ctx context.Context, omsID string, ref orderv1.BrokerRef) error {
	if ref.Empty() {
		return errors.TracerFromError(errors.NewErrorDetails(
			"broker reference is empty",
			string(errors.GeneralBadRequestError),
			"broker_ref",
		))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.orders[omsID]
	if !ok {
		return errors.TracerFromError(errors.NewErrorDetails(
			"order not found",
			string(errors.OrderNotFound),
			"oms_id",
		))
	}

	for _, key := range refKeys(ref) {
		if bound, exists := s.byBroker[key]; exists && bound != omsID {
			return errors.TracerFromError(errors.NewErrorDetailsWithObject(
				"broker reference already bound to another order",
				string(errors.OrderBrokerRebind),
				"broker_ref",
				ref,
			))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.state.BrokerRef
	switch {
	case current.Empty():
		e.state.BrokerRef = ref
	case sameIdentity(current, ref):
		// Same order seen again, keep the perm id if it just arrived.
		if current.PermID == "" && ref.PermID != "" {
			e.state.BrokerRef.PermID = ref.PermID
		}
	default:
		return errors.TracerFromError(errors.NewErrorDetailsWithObject(
			"order already bound to a different broker reference",
			string(errors.OrderBrokerRebind),
			"broker_ref",
			ref,
		))
	}

	for _, key := range refKeys(e.state.BrokerRef) {
		s.byBroker[key] = omsID
	}

	return nil
}

// FindByBroker returns a copy of the state bound to ref, preferring the
// persistent perm id over the session-scoped id.
func (s *Store) FindByBroker(ctx context.Context, ref orderv1.BrokerRef) (*orderv1.OrderState, error) {
	s.mu.RLock()
	var e *entry
	for _, key := range refKeys(ref) {
		if omsID, ok := s.byBroker[key]; ok {
			e = s.orders[omsID]
			break
		}
	}
	s.mu.RUnlock()

	if e == nil {
		return nil, errors.TracerFromError(errors.NewErrorDetailsWithObject(
			"no order bound to broker reference",
			string(errors.OrderNotFound),
			"broker_ref",
			ref,
		))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// Open returns copies of all non-terminal order states.
func (s *Store) Open(ctx context.Context) []*orderv1.OrderState {
	return s.collect(func(state *orderv1.OrderState) bool {
		return state.Open()
	})
}

// All returns copies of every order state.
func (s *Store) All(ctx context.Context) []*orderv1.OrderState {
	return s.collect(func(*orderv1.OrderState) bool {
		return true
	})
}

// SweepTerminal removes terminal orders that reached their terminal status
// before cutoff. Orders inside the retention window stay so late duplicate
// fills still hit the dedup set.
func (s *Store) SweepTerminal(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for omsID, e := range s.orders {
		e.mu.Lock()
		expired := e.state.Status.IsTerminal() &&
			!e.state.TerminalAt.IsZero() &&
			e.state.TerminalAt.Before(cutoff)
		ref := e.state.BrokerRef
		e.mu.Unlock()

		if !expired {
			continue
		}

		delete(s.orders, omsID)
		for _, key := range refKeys(ref) {
			if s.byBroker[key] == omsID {
				delete(s.byBroker, key)
			}
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("swept terminal orders", logger.Field{Key: "removed", Value: removed})
	}

	return removed
}

func (s *Store) lookup(omsID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.orders[omsID]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.TracerFromError(errors.NewErrorDetails(
			"order not found",
			string(errors.OrderNotFound),
			"oms_id",
		))
	}
	return e, nil
}

func (s *Store) collect(keep func(*orderv1.OrderState) bool) []*orderv1.OrderState {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.orders))
	for _, e := range s.orders {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*orderv1.OrderState
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.state) {
			out = append(out, e.state.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// refKeys returns every index key a reference answers to. A reference with
// both ids is reachable through either.
func refKeys(ref orderv1.BrokerRef) []string {
	return ref.Keys()
}

// sameIdentity reports whether two references can describe the same broker
// order. Matching perm ids always agree, otherwise the session identity has
// to match exactly.
func sameIdentity(a, b orderv1.BrokerRef) bool {
	if a.PermID != "" && b.PermID != "" {
		return a.PermID == b.PermID
	}
	return a.OrderID == b.OrderID && a.SessionDate == b.SessionDate
}
