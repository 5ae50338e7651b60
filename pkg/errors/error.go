package errors

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// OrderNotFound represents an error when an order id is unknown to the store.
	OrderNotFound ErrorCode = "order_not_found"
	// OrderDuplicateID represents an error when an order id is created twice.
	OrderDuplicateID ErrorCode = "order_duplicate_id"
	// OrderInvalidQuantity represents an error when an order quantity is not positive.
	OrderInvalidQuantity ErrorCode = "order_invalid_quantity"
	// OrderUnsupportedType represents an error when an order type is not supported.
	OrderUnsupportedType ErrorCode = "order_unsupported_type"
	// OrderInvalidPrice represents an error when a limit order has no positive price.
	OrderInvalidPrice ErrorCode = "order_invalid_price"
	// OrderBrokerRebind represents an error when a broker order id is bound to a second engine order.
	OrderBrokerRebind ErrorCode = "order_broker_rebind"

	// FillDuplicateExecution represents an error when an execution id was already accepted for an order.
	FillDuplicateExecution ErrorCode = "fill_duplicate_execution"
	// FillInvalidQuantity represents an error when a fill quantity is not positive.
	FillInvalidQuantity ErrorCode = "fill_invalid_quantity"
	// FillInvalidPrice represents an error when a fill price is not positive.
	FillInvalidPrice ErrorCode = "fill_invalid_price"

	// ConnectorUnavailable represents an error when the broker connector is not connected.
	ConnectorUnavailable ErrorCode = "connector_unavailable"
	// ConnectorSubmitError represents a transport error while submitting an order.
	ConnectorSubmitError ErrorCode = "connector_submit_error"
	// ConnectorCancelError represents a transport error while canceling an order.
	ConnectorCancelError ErrorCode = "connector_cancel_error"
	// ConnectorQueryError represents a transport error while querying broker state.
	ConnectorQueryError ErrorCode = "connector_query_error"

	// JournalPublishError represents an error when publishing an audit event.
	JournalPublishError ErrorCode = "journal_publish_error"
	// JournalStoreError represents an error when persisting an audit event.
	JournalStoreError ErrorCode = "journal_store_error"

	// SnapshotStoreError represents an error when storing a position snapshot.
	SnapshotStoreError ErrorCode = "snapshot_store_error"
	// SnapshotLoadError represents an error when loading a position snapshot.
	SnapshotLoadError ErrorCode = "snapshot_load_error"

	// RedisConfigError represents an error when the Redis configuration is invalid or nil.
	RedisConfigError ErrorCode = "redis_config_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisDisconnectionError represents an error when disconnecting from Redis.
	RedisDisconnectionError ErrorCode = "redis_disconnection_error"
	// RedisPingError represents an error when pinging Redis.
	RedisPingError ErrorCode = "redis_pinging_error"
	// RedisGetError represents an error when getting a value from Redis.
	RedisGetError ErrorCode = "redis_get_error"
	// RedisSetError represents an error when setting a value in Redis.
	RedisSetError ErrorCode = "redis_set_error"
	// RedisDelError represents an error when deleting keys from Redis.
	RedisDelError ErrorCode = "redis_del_error"

	// PostgresConfigError represents an error when the PostgreSQL configuration is invalid.
	PostgresConfigError ErrorCode = "postgres_config_error"
	// PostgresConnectionError represents an error when connecting to PostgreSQL.
	PostgresConnectionError ErrorCode = "postgres_connection_error"
)
