// Package memory is an in-process ledger store implementing the repository
// ports. Writers are serialized; each transaction stages its writes and
// applies them atomically on Commit, so a rolled-back operation leaves no
// trace. Used for local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrForeignTx is returned when a repository receives a transaction that was
// not started by its Store.
var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

// Store holds all committed records.
type Store struct {
	writer chan struct{} // single writer slot

	mu          sync.RWMutex
	stakes      map[uuid.UUID]domain.StakeAccount
	merchants   map[uuid.UUID]domain.MerchantAccount
	obligations map[domain.ObligationKey]domain.PaymentObligation
	vault       *domain.ProtocolVault
	balances    map[uuid.UUID]int64
	journal     []domain.Transaction
	idempotency map[string]domain.IdempotencyLog
	audits      []domain.AuditLog
	webhooks    map[uuid.UUID]domain.WebhookDeliveryLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		writer:      make(chan struct{}, 1),
		stakes:      make(map[uuid.UUID]domain.StakeAccount),
		merchants:   make(map[uuid.UUID]domain.MerchantAccount),
		obligations: make(map[domain.ObligationKey]domain.PaymentObligation),
		balances:    make(map[uuid.UUID]int64),
		idempotency: make(map[string]domain.IdempotencyLog),
		webhooks:    make(map[uuid.UUID]domain.WebhookDeliveryLog),
	}
}

// Begin starts a transaction, waiting for the writer slot. Implements
// ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{
		store:       s,
		stakes:      make(map[uuid.UUID]domain.StakeAccount),
		merchants:   make(map[uuid.UUID]domain.MerchantAccount),
		obligations: make(map[domain.ObligationKey]domain.PaymentObligation),
		balances:    make(map[uuid.UUID]int64),
		idempotency: make(map[string]domain.IdempotencyLog),
	}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// Tx stages writes until Commit. Only Commit and Rollback are meaningful; the
// SQL methods exist to satisfy pgx.Tx and do nothing.
type Tx struct {
	store *Store
	done  bool

	stakes      map[uuid.UUID]domain.StakeAccount
	merchants   map[uuid.UUID]domain.MerchantAccount
	obligations map[domain.ObligationKey]domain.PaymentObligation
	vault       *domain.ProtocolVault
	balances    map[uuid.UUID]int64
	journal     []domain.Transaction
	idempotency map[string]domain.IdempotencyLog
}

// Commit applies every staged write and releases the writer slot.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	s := t.store
	s.mu.Lock()
	for k, v := range t.stakes {
		s.stakes[k] = v
	}
	for k, v := range t.merchants {
		s.merchants[k] = v
	}
	for k, v := range t.obligations {
		s.obligations[k] = v
	}
	if t.vault != nil {
		v := *t.vault
		s.vault = &v
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	s.journal = append(s.journal, t.journal...)
	for k, v := range t.idempotency {
		s.idempotency[k] = v
	}
	s.mu.Unlock()

	t.finish()
	return nil
}

// Rollback discards staged writes. Returns pgx.ErrTxClosed after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	<-t.store.writer
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("memory: nested transactions are not supported")
}
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

func (s *Store) txFrom(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

func paginate(page, pageSize, n int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}
