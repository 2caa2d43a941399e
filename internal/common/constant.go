package common

// IdempotencyKeyHeader is the HTTP header carrying the per-operation
// idempotency key on outbound submissions. The backend deduplicates on it.
const IdempotencyKeyHeader = "Idempotency-Key"
