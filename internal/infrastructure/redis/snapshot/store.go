package snapshot

import (
	"context"
	"encoding/json"
	"time"

	orderv1 "github.com/muhammadchandra19/execution-engine/internal/domain/order/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/muhammadchandra19/execution-engine/pkg/redis"
)

const snapshotKey = "positions:snapshot"

// Snapshot is the persisted position view. It is advisory only, positions
// are always rederivable from fills, the snapshot just gives dashboards and
// a restarting process a quick read before the first reconcile completes.
type Snapshot struct {
	Account   string             `json:"account"`
	Positions []orderv1.Position `json:"positions"`
	TakenAt   time.Time          `json:"taken_at"`
}

// Store persists position snapshots to Redis.
type Store struct {
	client redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Interface
}

// NewStore creates a snapshot store.
func NewStore(client redis.Client, cfg *redis.Config, log logger.Interface) *Store {
	return &Store{
		client: client,
		prefix: cfg.PrefixKey,
		ttl:    cfg.DefaultTTL,
		logger: log,
	}
}

// Save writes the snapshot, replacing any previous one.
func (s *Store) Save(ctx context.Context, snapshot *Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.TracerFromError(err)
	}

	if err := s.client.Set(ctx, s.prefix+snapshotKey, payload, s.ttl); err != nil {
		return errors.TracerFromError(errors.NewErrorDetails(
			"failed to store position snapshot",
			string(errors.SnapshotStoreError),
			"snapshot",
		))
	}

	return nil
}

// Load returns the latest snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, s.prefix+snapshotKey)
	if err != nil {
		return nil, errors.TracerFromError(errors.NewErrorDetails(
			"failed to load position snapshot",
			string(errors.SnapshotLoadError),
			"snapshot",
		))
	}
	if raw == "" {
		return nil, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return &snapshot, nil
}
