package backend

import (
	"context"

	"pocketmoney/internal/amqp"
	"pocketmoney/internal/ledger"
)

// Backend is a ledger store that also keeps the audit trail.
type Backend interface {
	ledger.Store
	ledger.AuditLog
}

// BackendResult is what CreateBackend opened. Events is nil when AMQP is not
// configured or the broker could not be reached. Cleanup closes everything
// in reverse opening order.
type BackendResult struct {
	Backend Backend
	Events  *amqp.Client
	Cleanup func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config selects and locates the store; the AMQP fields are optional for
// every store type.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	DatabaseURL  string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}
