// Package vault holds the protocol vault's delegated authority over the shared
// yield reserve and the protocol holding account. Services never touch the
// reserve or the holding directly; they open a Session, which locks the vault
// row inside a database transaction and exposes the only permitted movements.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/checked"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Authority is the capability held by the protocol vault.
type Authority struct {
	txManager ports.DBTransactor
	vaultRepo ports.VaultRepository
	assets    ports.AssetLedger
	reserve   ports.YieldReserve
	holding   uuid.UUID
	log       zerolog.Logger
}

// NewAuthority creates the vault authority.
func NewAuthority(
	txManager ports.DBTransactor,
	vaultRepo ports.VaultRepository,
	assets ports.AssetLedger,
	reserve ports.YieldReserve,
	log zerolog.Logger,
) *Authority {
	return &Authority{
		txManager: txManager,
		vaultRepo: vaultRepo,
		assets:    assets,
		reserve:   reserve,
		holding:   domain.ProtocolHoldingID,
		log:       log,
	}
}

// Rates reports the reserve's current rates. Read-only, no session needed.
func (a *Authority) Rates(ctx context.Context) (domain.ReserveRates, error) {
	rates, err := a.reserve.Rates(ctx)
	if err != nil {
		return domain.ReserveRates{}, apperror.ErrAdapter(err)
	}
	return rates, nil
}

// Session is one transaction holding the vault row lock.
type Session struct {
	auth      *Authority
	tx        pgx.Tx
	state     *domain.ProtocolVault
	effects   []string // reserve calls already issued in this session
	committed bool
}

// Begin starts a transaction and locks the vault row. Fails with InvalidState
// if the protocol has not been bootstrapped.
func (a *Authority) Begin(ctx context.Context) (*Session, error) {
	tx, err := a.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	state, err := a.vaultRepo.GetForUpdate(ctx, tx)
	if err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, apperror.ErrDatabaseError(err)
	}
	if state == nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, apperror.ErrInvalidState("Protocol vault is not bootstrapped")
	}

	return &Session{auth: a, tx: tx, state: state}, nil
}

// Tx returns the session's database transaction for repository calls.
func (s *Session) Tx() pgx.Tx {
	return s.tx
}

// State returns a copy of the vault row as currently staged.
func (s *Session) State() domain.ProtocolVault {
	return *s.state
}

// RequireAdmin fails with AuthorizationError unless caller is the vault admin.
func (s *Session) RequireAdmin(caller domain.Caller) error {
	if caller.Role != domain.RoleAdmin || !s.state.IsAdmin(caller.ID) {
		return apperror.ErrUnauthorized()
	}
	return nil
}

// RequireSettler fails unless caller is the vault admin or a crank operator.
func (s *Session) RequireSettler(caller domain.Caller) error {
	if caller.Role == domain.RoleCrank {
		return nil
	}
	return s.RequireAdmin(caller)
}

// DepositFrom moves amount from owner's liquid balance into the reserve and
// counts it as staked principal. Returns the receipts minted.
func (s *Session) DepositFrom(ctx context.Context, owner uuid.UUID, amount int64) (int64, error) {
	totalStaked, err := checked.Add(s.state.TotalStaked, amount)
	if err != nil {
		return 0, apperror.ErrArithmeticOverflow(err)
	}
	if _, err := s.auth.assets.Debit(ctx, s.tx, owner, amount); err != nil {
		return 0, ledgerError(err, "liquid balance")
	}

	receipts, err := s.auth.reserve.Deposit(ctx, amount)
	if err != nil {
		return 0, apperror.ErrAdapter(err)
	}
	s.effects = append(s.effects, fmt.Sprintf("deposit %d", amount))
	if receipts <= 0 {
		return 0, apperror.ErrAdapter(fmt.Errorf("reserve minted %d receipts for %d", receipts, amount))
	}

	s.state.TotalStaked = totalStaked
	return receipts, nil
}

// WithdrawTo redeems amount receipts and pays amount of underlying to owner,
// removing it from staked principal. Underlying received above amount is
// accrued yield and is counted as harvested rewards.
func (s *Session) WithdrawTo(ctx context.Context, owner uuid.UUID, amount int64) (int64, error) {
	totalStaked, err := checked.Sub(s.state.TotalStaked, amount)
	if err != nil {
		return 0, apperror.ErrArithmeticOverflow(err)
	}

	underlying, err := s.redeemToHolding(ctx, amount)
	if err != nil {
		return 0, err
	}
	if err := s.transfer(ctx, s.auth.holding, owner, amount); err != nil {
		return 0, err
	}

	if underlying > amount {
		rewards, err := checked.Add(s.state.TotalRewardsHarvested, underlying-amount)
		if err != nil {
			return 0, apperror.ErrArithmeticOverflow(err)
		}
		s.state.TotalRewardsHarvested = rewards
	}
	s.state.TotalStaked = totalStaked
	return underlying, nil
}

// Harvest redeems receipts into the protocol holding and counts the
// underlying received as harvested rewards. Callers cap receipts before
// calling; the reserve is never asked for more than is owed.
func (s *Session) Harvest(ctx context.Context, receipts int64) (int64, error) {
	underlying, err := s.redeemToHolding(ctx, receipts)
	if err != nil {
		return 0, err
	}
	rewards, err := checked.Add(s.state.TotalRewardsHarvested, underlying)
	if err != nil {
		return 0, apperror.ErrArithmeticOverflow(err)
	}
	s.state.TotalRewardsHarvested = rewards
	return underlying, nil
}

// PayMerchant transfers amount from the protocol holding to the merchant.
func (s *Session) PayMerchant(ctx context.Context, merchant uuid.UUID, amount int64) error {
	return s.transfer(ctx, s.auth.holding, merchant, amount)
}

// ObligationOpened counts a newly authorized obligation.
func (s *Session) ObligationOpened() error {
	n, err := checked.Add(s.state.OpenObligationCount, 1)
	if err != nil {
		return apperror.ErrArithmeticOverflow(err)
	}
	s.state.OpenObligationCount = n
	return nil
}

// ObligationClosed counts a completed obligation.
func (s *Session) ObligationClosed() error {
	n, err := checked.Sub(s.state.OpenObligationCount, 1)
	if err != nil {
		return apperror.ErrArithmeticOverflow(err)
	}
	s.state.OpenObligationCount = n
	return nil
}

// Commit writes the staged vault row and commits the transaction.
func (s *Session) Commit(ctx context.Context) error {
	s.state.UpdatedAt = time.Now()
	if err := s.auth.vaultRepo.Update(ctx, s.tx, s.state); err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if err := s.tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(err)
	}
	s.committed = true
	return nil
}

// Rollback aborts the transaction unless it was committed. Safe to defer.
// A rollback after a reserve call leaves the reserve ahead of the ledger, which
// is logged for reconciliation.
func (s *Session) Rollback(ctx context.Context) {
	if s.committed {
		return
	}
	s.tx.Rollback(ctx) //nolint:errcheck
	if len(s.effects) > 0 {
		s.auth.log.Error().
			Strs("reserve_effects", s.effects).
			Msg("Transaction rolled back after reserve call; reserve position needs reconciliation")
	}
}

func (s *Session) redeemToHolding(ctx context.Context, receipts int64) (int64, error) {
	if receipts <= 0 {
		return 0, apperror.ErrInvalidState("Redemption amount must be positive")
	}

	underlying, err := s.auth.reserve.Redeem(ctx, receipts)
	if err != nil {
		return 0, apperror.ErrAdapter(err)
	}
	s.effects = append(s.effects, fmt.Sprintf("redeem %d", receipts))
	if underlying < 0 {
		return 0, apperror.ErrAdapter(fmt.Errorf("reserve returned %d underlying", underlying))
	}

	if underlying > 0 {
		if _, err := s.auth.assets.Credit(ctx, s.tx, s.auth.holding, underlying); err != nil {
			return 0, ledgerError(err, "protocol holding")
		}
	}
	return underlying, nil
}

func (s *Session) transfer(ctx context.Context, from, to uuid.UUID, amount int64) error {
	if amount == 0 {
		return nil
	}
	if _, err := s.auth.assets.Debit(ctx, s.tx, from, amount); err != nil {
		return ledgerError(err, "liquid balance")
	}
	if _, err := s.auth.assets.Credit(ctx, s.tx, to, amount); err != nil {
		return ledgerError(err, "liquid balance")
	}
	return nil
}

func ledgerError(err error, what string) error {
	switch {
	case errors.Is(err, ports.ErrInsufficientAssets):
		return apperror.ErrInsufficientBalance(what)
	case checked.IsArithmetic(err):
		return apperror.ErrArithmeticOverflow(err)
	default:
		return apperror.ErrDatabaseError(err)
	}
}
