package memory

import (
	"context"
	"fmt"
	"sort"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/checked"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Stake accounts ---

type stakeRepo struct{ s *Store }

// StakeAccounts returns the store's StakeAccountRepository.
func (s *Store) StakeAccounts() ports.StakeAccountRepository { return &stakeRepo{s} }

func (r *stakeRepo) Get(ctx context.Context, buyerID uuid.UUID) (*domain.StakeAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.stakes[buyerID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *stakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) (*domain.StakeAccount, error) {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return nil, err
	}
	if a, ok := t.stakes[buyerID]; ok {
		return &a, nil
	}
	return r.Get(ctx, buyerID)
}

func (r *stakeRepo) Create(ctx context.Context, tx pgx.Tx, account *domain.StakeAccount) error {
	existing, err := r.GetForUpdate(ctx, tx, account.BuyerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("stake account %s already exists", account.BuyerID)
	}
	t, _ := r.s.txFrom(tx)
	t.stakes[account.BuyerID] = *account
	return nil
}

func (r *stakeRepo) Update(ctx context.Context, tx pgx.Tx, account *domain.StakeAccount) error {
	existing, err := r.GetForUpdate(ctx, tx, account.BuyerID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("stake account %s not found", account.BuyerID)
	}
	t, _ := r.s.txFrom(tx)
	t.stakes[account.BuyerID] = *account
	return nil
}

// --- Merchant accounts ---

type merchantRepo struct{ s *Store }

// MerchantAccounts returns the store's MerchantAccountRepository.
func (s *Store) MerchantAccounts() ports.MerchantAccountRepository { return &merchantRepo{s} }

func (r *merchantRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.merchants[merchantID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *merchantRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.MerchantAccount, error) {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return nil, err
	}
	if m, ok := t.merchants[merchantID]; ok {
		return &m, nil
	}
	return r.Get(ctx, merchantID)
}

func (r *merchantRepo) Create(ctx context.Context, tx pgx.Tx, account *domain.MerchantAccount) error {
	existing, err := r.GetForUpdate(ctx, tx, account.MerchantID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("merchant account %s: %w", account.MerchantID, ports.ErrDuplicate)
	}
	t, _ := r.s.txFrom(tx)
	t.merchants[account.MerchantID] = *account
	return nil
}

func (r *merchantRepo) Update(ctx context.Context, tx pgx.Tx, account *domain.MerchantAccount) error {
	existing, err := r.GetForUpdate(ctx, tx, account.MerchantID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("merchant account %s not found", account.MerchantID)
	}
	t, _ := r.s.txFrom(tx)
	t.merchants[account.MerchantID] = *account
	return nil
}

// --- Obligations ---

type obligationRepo struct{ s *Store }

// Obligations returns the store's ObligationRepository.
func (s *Store) Obligations() ports.ObligationRepository { return &obligationRepo{s} }

func (r *obligationRepo) Get(ctx context.Context, key domain.ObligationKey) (*domain.PaymentObligation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.obligations[key]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *obligationRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.ObligationKey) (*domain.PaymentObligation, error) {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return nil, err
	}
	if o, ok := t.obligations[key]; ok {
		return &o, nil
	}
	return r.Get(ctx, key)
}

func (r *obligationRepo) Create(ctx context.Context, tx pgx.Tx, obligation *domain.PaymentObligation) error {
	existing, err := r.GetForUpdate(ctx, tx, obligation.Key())
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("obligation %s already exists", obligation.Key())
	}
	t, _ := r.s.txFrom(tx)
	t.obligations[obligation.Key()] = *obligation
	return nil
}

func (r *obligationRepo) Update(ctx context.Context, tx pgx.Tx, obligation *domain.PaymentObligation) error {
	existing, err := r.GetForUpdate(ctx, tx, obligation.Key())
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("obligation %s not found", obligation.Key())
	}
	t, _ := r.s.txFrom(tx)
	t.obligations[obligation.Key()] = *obligation
	return nil
}

func (r *obligationRepo) List(ctx context.Context, params ports.ObligationListParams) ([]domain.PaymentObligation, int64, error) {
	r.s.mu.RLock()
	var matched []domain.PaymentObligation
	for _, o := range r.s.obligations {
		if params.BuyerID != nil && o.BuyerID != *params.BuyerID {
			continue
		}
		if params.MerchantID != nil && o.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		matched = append(matched, o)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Key().String() < matched[j].Key().String()
	})

	start, end := paginate(params.Page, params.PageSize, len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (r *obligationRepo) CountByStatus(ctx context.Context, merchantID uuid.UUID) (map[domain.ObligationStatus]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.ObligationStatus]int64)
	for _, o := range r.s.obligations {
		if o.MerchantID == merchantID {
			counts[o.Status]++
		}
	}
	return counts, nil
}

// --- Vault ---

type vaultRepo struct{ s *Store }

// Vault returns the store's VaultRepository.
func (s *Store) Vault() ports.VaultRepository { return &vaultRepo{s} }

func (r *vaultRepo) Get(ctx context.Context) (*domain.ProtocolVault, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.vault == nil {
		return nil, nil
	}
	v := *r.s.vault
	return &v, nil
}

func (r *vaultRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.ProtocolVault, error) {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return nil, err
	}
	if t.vault != nil {
		v := *t.vault
		return &v, nil
	}
	return r.Get(ctx)
}

func (r *vaultRepo) Create(ctx context.Context, tx pgx.Tx, vault *domain.ProtocolVault) error {
	existing, err := r.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("protocol vault: %w", ports.ErrDuplicate)
	}
	t, _ := r.s.txFrom(tx)
	v := *vault
	t.vault = &v
	return nil
}

func (r *vaultRepo) Update(ctx context.Context, tx pgx.Tx, vault *domain.ProtocolVault) error {
	existing, err := r.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("protocol vault not found")
	}
	t, _ := r.s.txFrom(tx)
	v := *vault
	t.vault = &v
	return nil
}

// --- Asset ledger ---

type assetLedger struct{ s *Store }

// Assets returns the store's AssetLedger.
func (s *Store) Assets() ports.AssetLedger { return &assetLedger{s} }

func (l *assetLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.balances[accountID], nil
}

func (l *assetLedger) staged(ctx context.Context, t *Tx, accountID uuid.UUID) int64 {
	if b, ok := t.balances[accountID]; ok {
		return b
	}
	b, _ := l.Balance(ctx, accountID)
	return b
}

func (l *assetLedger) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	t, err := l.s.txFrom(tx)
	if err != nil {
		return 0, err
	}
	next, err := checked.Add(l.staged(ctx, t, accountID), amount)
	if err != nil {
		return 0, err
	}
	t.balances[accountID] = next
	return next, nil
}

func (l *assetLedger) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	t, err := l.s.txFrom(tx)
	if err != nil {
		return 0, err
	}
	current := l.staged(ctx, t, accountID)
	if amount > current {
		return 0, ports.ErrInsufficientAssets
	}
	next, err := checked.Sub(current, amount)
	if err != nil {
		return 0, err
	}
	t.balances[accountID] = next
	return next, nil
}

// --- Journal ---

type transactionRepo struct{ s *Store }

// Transactions returns the store's TransactionRepository.
func (s *Store) Transactions() ports.TransactionRepository { return &transactionRepo{s} }

func (r *transactionRepo) Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return err
	}
	t.journal = append(t.journal, *transaction)
	return nil
}

func (r *transactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	var matched []domain.Transaction
	for i := len(r.s.journal) - 1; i >= 0; i-- {
		e := r.s.journal[i]
		if e.AccountID != params.AccountID {
			continue
		}
		if params.Type != nil && e.TransactionType != *params.Type {
			continue
		}
		if params.From != nil && e.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && e.CreatedAt.Unix() > *params.To {
			continue
		}
		matched = append(matched, e)
	}
	r.s.mu.RUnlock()

	start, end := paginate(params.Page, params.PageSize, len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (r *transactionRepo) GetStats(ctx context.Context, accountID uuid.UUID) (*ports.TransactionStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := &ports.TransactionStats{}
	for _, e := range r.s.journal {
		if e.AccountID != accountID {
			continue
		}
		stats.TotalEntries++
		switch e.TransactionType {
		case domain.TransactionTypeFund:
			stats.TotalFunded += e.Amount
		case domain.TransactionTypeStake:
			stats.TotalStaked += e.Amount
		case domain.TransactionTypeUnstake:
			stats.TotalUnstaked += e.Amount
		case domain.TransactionTypeSettleHarvest:
			stats.TotalHarvest += e.Amount
		case domain.TransactionTypeSettleDirect:
			stats.TotalDirect += e.Amount
		}
	}
	return stats, nil
}

// --- Idempotency ---

type idempotencyRepo struct{ s *Store }

// Idempotency returns the store's IdempotencyRepository.
func (s *Store) Idempotency() ports.IdempotencyRepository { return &idempotencyRepo{s} }

func (r *idempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	t, err := r.s.txFrom(tx)
	if err != nil {
		return err
	}
	if _, ok := t.idempotency[log.Key]; ok {
		return fmt.Errorf("idempotency key %q: %w", log.Key, ports.ErrDuplicate)
	}
	if existing, _ := r.Get(ctx, log.Key); existing != nil {
		return fmt.Errorf("idempotency key %q: %w", log.Key, ports.ErrDuplicate)
	}
	t.idempotency[log.Key] = *log
	return nil
}

func (r *idempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// --- Audit & webhooks (written outside transactions) ---

type auditRepo struct{ s *Store }

// Audits returns the store's AuditRepository.
func (s *Store) Audits() ports.AuditRepository { return &auditRepo{s} }

func (r *auditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

// AuditEntries returns a copy of every audit entry written so far.
func (s *Store) AuditEntries() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audits...)
}

type webhookRepo struct{ s *Store }

// Webhooks returns the store's WebhookRepository.
func (s *Store) Webhooks() ports.WebhookRepository { return &webhookRepo{s} }

func (r *webhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.webhooks[log.ID] = *log
	return nil
}

func (r *webhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhooks[log.ID]; !ok {
		return fmt.Errorf("webhook delivery %s not found", log.ID)
	}
	r.s.webhooks[log.ID] = *log
	return nil
}

func (r *webhookRepo) ListByObligation(ctx context.Context, obligationKey string) ([]domain.WebhookDeliveryLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var logs []domain.WebhookDeliveryLog
	for _, l := range r.s.webhooks {
		if l.ObligationKey == obligationKey {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}
