package service

import (
	"context"
	"fmt"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/vault"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/checked"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StakeServiceImpl implements ports.StakeService.
type StakeServiceImpl struct {
	vault     *vault.Authority
	stakeRepo ports.StakeAccountRepository
	txRepo    ports.TransactionRepository
	metrics   ports.ProtocolMetrics
	log       zerolog.Logger
}

// NewStakeService creates a new StakeServiceImpl.
func NewStakeService(
	authority *vault.Authority,
	stakeRepo ports.StakeAccountRepository,
	txRepo ports.TransactionRepository,
	metrics ports.ProtocolMetrics,
	log zerolog.Logger,
) *StakeServiceImpl {
	return &StakeServiceImpl{
		vault:     authority,
		stakeRepo: stakeRepo,
		txRepo:    txRepo,
		metrics:   metrics,
		log:       log,
	}
}

// Stake moves amount from the buyer's liquid balance into the reserve and
// credits it as unlockable principal.
func (s *StakeServiceImpl) Stake(ctx context.Context, req ports.StakeRequest) (acct *domain.StakeAccount, err error) {
	defer func() { s.metrics.ObserveOperation("stake", err) }()

	if req.Caller.Role != domain.RoleBuyer {
		return nil, apperror.ErrUnauthorized()
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidState("Stake amount must be positive")
	}
	buyer := req.Caller.ID

	sess, err := s.vault.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	acct, err = s.stakeRepo.GetForUpdate(ctx, sess.Tx(), buyer)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock stake account: %w", err))
	}
	now := time.Now().UTC()
	isNew := acct == nil
	if isNew {
		acct = domain.NewStakeAccount(buyer, now)
	}

	staked, err := checked.Add(acct.StakedPrincipal, req.Amount)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	unlockable, err := checked.Add(acct.UnlockableBalance, req.Amount)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}

	receipts, err := sess.DepositFrom(ctx, buyer, req.Amount)
	if err != nil {
		return nil, err
	}

	acct.StakedPrincipal = staked
	acct.UnlockableBalance = unlockable
	acct.UpdatedAt = now
	if isNew {
		err = s.stakeRepo.Create(ctx, sess.Tx(), acct)
	} else {
		err = s.stakeRepo.Update(ctx, sess.Tx(), acct)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save stake account: %w", err))
	}

	if err := s.txRepo.Create(ctx, sess.Tx(), &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: domain.TransactionTypeStake,
		AccountID:       buyer,
		Amount:          req.Amount,
		ReserveAmount:   receipts,
		CreatedBy:       buyer,
		CreatedAt:       now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("journal stake: %w", err))
	}

	totalStaked := sess.State().TotalStaked
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	s.metrics.SetTotalStaked(totalStaked)

	s.log.Info().
		Str("buyer", buyer.String()).
		Int64("amount", req.Amount).
		Int64("receipts", receipts).
		Int64("staked_principal", acct.StakedPrincipal).
		Msg("stake deposited")

	return acct, nil
}

// Unstake redeems amount from the reserve and pays it to the buyer. Only the
// unlockable part of the principal can be withdrawn.
func (s *StakeServiceImpl) Unstake(ctx context.Context, req ports.StakeRequest) (acct *domain.StakeAccount, err error) {
	defer func() { s.metrics.ObserveOperation("unstake", err) }()

	if req.Caller.Role != domain.RoleBuyer {
		return nil, apperror.ErrUnauthorized()
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidState("Unstake amount must be positive")
	}
	buyer := req.Caller.ID

	sess, err := s.vault.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	acct, err = s.stakeRepo.GetForUpdate(ctx, sess.Tx(), buyer)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock stake account: %w", err))
	}
	if acct == nil || req.Amount > acct.UnlockableBalance {
		return nil, apperror.ErrInsufficientBalance("unlockable balance")
	}

	staked, err := checked.Sub(acct.StakedPrincipal, req.Amount)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	unlockable, err := checked.Sub(acct.UnlockableBalance, req.Amount)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}

	underlying, err := sess.WithdrawTo(ctx, buyer, req.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acct.StakedPrincipal = staked
	acct.UnlockableBalance = unlockable
	acct.UpdatedAt = now
	if err := s.stakeRepo.Update(ctx, sess.Tx(), acct); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save stake account: %w", err))
	}

	if err := s.txRepo.Create(ctx, sess.Tx(), &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: domain.TransactionTypeUnstake,
		AccountID:       buyer,
		Amount:          req.Amount,
		ReserveAmount:   underlying,
		CreatedBy:       buyer,
		CreatedAt:       now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("journal unstake: %w", err))
	}

	totalStaked := sess.State().TotalStaked
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	s.metrics.SetTotalStaked(totalStaked)

	s.log.Info().
		Str("buyer", buyer.String()).
		Int64("amount", req.Amount).
		Int64("underlying", underlying).
		Msg("stake withdrawn")

	return acct, nil
}

// GetAccount returns the buyer's stake account.
func (s *StakeServiceImpl) GetAccount(ctx context.Context, buyerID uuid.UUID) (*domain.StakeAccount, error) {
	acct, err := s.stakeRepo.Get(ctx, buyerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get stake account: %w", err))
	}
	if acct == nil {
		return nil, apperror.ErrNotFound("Stake account")
	}
	return acct, nil
}
