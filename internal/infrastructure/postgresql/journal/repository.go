package journal

import (
	"context"
	"encoding/json"

	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/muhammadchandra19/execution-engine/pkg/postgresql"
)

// Repository persists audit journal events to PostgreSQL.
type repository struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
}

var _ journalv1.Sink = (*repository)(nil)

// NewRepository creates a new journal repository.
func NewRepository(db postgresql.PostgreSQLClient, log logger.Interface) *repository {
	return &repository{
		db:     db,
		logger: log,
	}
}

// Name identifies the sink in logs.
func (r *repository) Name() string {
	return "postgresql"
}

// Publish inserts the event into the journal table. Replays of the same
// event id are ignored, the journal is append-once per event.
func (r *repository) Publish(ctx context.Context, event journalv1.Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return errors.TracerFromError(err)
	}

	query := `INSERT INTO execution_journal (id, kind, oms_id, symbol, broker_time, local_time, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		event.ID,
		string(event.Kind),
		event.OMSID,
		event.Symbol,
		event.BrokerTime,
		event.LocalTime,
		detail,
	)
	if err != nil {
		r.logger.Error(errors.TracerFromError(err),
			logger.Field{Key: "event_id", Value: event.ID},
		)
		return errors.TracerFromError(errors.NewErrorDetails(
			"failed to store journal event",
			string(errors.JournalStoreError),
			"execution_journal",
		))
	}

	return nil
}
