package journalv1

import "context"

// Journal records audit events. Record never blocks order flow, sinks
// drain asynchronously.
//
//go:generate mockgen -source=interface.go -destination=mock/interface_mock.go -package=journalv1_mock
type Journal interface {
	Record(ctx context.Context, event Event)
}

// Sink receives drained journal events, e.g. a Kafka topic or a
// PostgreSQL table.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}
