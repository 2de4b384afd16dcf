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

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	vault          *vault.Authority
	merchantRepo   ports.MerchantAccountRepository
	stakeRepo      ports.StakeAccountRepository
	obligationRepo ports.ObligationRepository
	txRepo         ports.TransactionRepository
	webhookSvc     ports.WebhookService
	metrics        ports.ProtocolMetrics
	log            zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl. webhookSvc may be nil.
func NewSettlementService(
	authority *vault.Authority,
	merchantRepo ports.MerchantAccountRepository,
	stakeRepo ports.StakeAccountRepository,
	obligationRepo ports.ObligationRepository,
	txRepo ports.TransactionRepository,
	webhookSvc ports.WebhookService,
	metrics ports.ProtocolMetrics,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		vault:          authority,
		merchantRepo:   merchantRepo,
		stakeRepo:      stakeRepo,
		obligationRepo: obligationRepo,
		txRepo:         txRepo,
		webhookSvc:     webhookSvc,
		metrics:        metrics,
		log:            log,
	}
}

// SettleHarvest redeems up to the remaining amount from the reserve and pays
// it to the merchant. Callable by the vault admin or a crank operator.
func (s *SettlementServiceImpl) SettleHarvest(ctx context.Context, req ports.SettlementRequest) (res *ports.SettlementResult, err error) {
	defer func() { s.metrics.ObserveOperation("settle_harvest", err) }()

	if req.Caller.Role != domain.RoleAdmin && req.Caller.Role != domain.RoleCrank {
		return nil, apperror.ErrUnauthorized()
	}
	return s.settle(ctx, req, domain.SettlementModeHarvest)
}

// ClaimDirect pays the merchant from the protocol's liquid holding without
// touching the reserve. Callable only by the obligation's merchant.
func (s *SettlementServiceImpl) ClaimDirect(ctx context.Context, req ports.SettlementRequest) (res *ports.SettlementResult, err error) {
	defer func() { s.metrics.ObserveOperation("claim_direct", err) }()

	if !req.Caller.Is(domain.RoleMerchant, req.Key.MerchantID) {
		return nil, apperror.ErrUnauthorized()
	}
	return s.settle(ctx, req, domain.SettlementModeDirect)
}

func (s *SettlementServiceImpl) settle(ctx context.Context, req ports.SettlementRequest, mode domain.SettlementMode) (*ports.SettlementResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidState("Settlement amount must be positive")
	}

	sess, err := s.vault.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	if mode == domain.SettlementModeHarvest {
		if err := sess.RequireSettler(req.Caller); err != nil {
			return nil, err
		}
	}

	// Lock order: vault, merchant, stake account, obligation.
	merchant, err := s.merchantRepo.GetForUpdate(ctx, sess.Tx(), req.Key.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("Merchant account")
	}
	buyer, err := s.stakeRepo.GetForUpdate(ctx, sess.Tx(), req.Key.BuyerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock stake account: %w", err))
	}
	ob, err := s.obligationRepo.GetForUpdate(ctx, sess.Tx(), req.Key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock obligation: %w", err))
	}
	if ob == nil || buyer == nil {
		return nil, apperror.ErrNotFound("Obligation")
	}
	if ob.IsCompleted() {
		return nil, apperror.ErrInvalidState("Obligation is already completed")
	}

	remaining, err := checked.Sub(ob.AmountDue, ob.AmountFulfilled)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	payNow := checked.Min(req.Amount, remaining)

	fulfilled, err := checked.Add(ob.AmountFulfilled, payNow)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	totalSettled, err := checked.Add(merchant.TotalSettled, payNow)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}

	completed := fulfilled >= ob.AmountDue
	lockedAfter, unlockableAfter := buyer.LockedCollateral, buyer.UnlockableBalance
	if completed {
		if lockedAfter, err = checked.Sub(buyer.LockedCollateral, ob.LockedCollateral); err != nil {
			return nil, apperror.ErrArithmeticOverflow(err)
		}
		if unlockableAfter, err = checked.Add(buyer.UnlockableBalance, ob.LockedCollateral); err != nil {
			return nil, apperror.ErrArithmeticOverflow(err)
		}
		if err := sess.ObligationClosed(); err != nil {
			return nil, err
		}
	}

	// Reserve and asset movements come last so every precondition above has
	// already passed. The harvest redemption is capped to what is owed.
	var redeemed int64
	if mode == domain.SettlementModeHarvest {
		if redeemed, err = sess.Harvest(ctx, payNow); err != nil {
			return nil, err
		}
	}
	if err := sess.PayMerchant(ctx, merchant.MerchantID, payNow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ob.AmountFulfilled = fulfilled
	ob.UpdatedAt = now
	if completed {
		ob.Status = domain.ObligationStatusCompleted
		ob.CompletedAt = &now

		buyer.LockedCollateral = lockedAfter
		buyer.UnlockableBalance = unlockableAfter
		buyer.UpdatedAt = now
		if err := s.stakeRepo.Update(ctx, sess.Tx(), buyer); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("release collateral: %w", err))
		}
	}
	merchant.TotalSettled = totalSettled
	merchant.UpdatedAt = now

	if err := s.obligationRepo.Update(ctx, sess.Tx(), ob); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update obligation: %w", err))
	}
	if err := s.merchantRepo.Update(ctx, sess.Tx(), merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}

	obKey := ob.Key().String()
	buyerID := ob.BuyerID
	if err := s.txRepo.Create(ctx, sess.Tx(), &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: mode.TransactionType(),
		AccountID:       merchant.MerchantID,
		Counterparty:    &buyerID,
		Amount:          payNow,
		ReserveAmount:   redeemed,
		ObligationKey:   &obKey,
		ReferenceID:     ob.ReferenceID,
		CreatedBy:       req.Caller.ID,
		CreatedAt:       now,
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("journal settlement: %w", err))
	}

	openCount := sess.State().OpenObligationCount
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}

	s.metrics.ObserveSettlement(mode, payNow, completed)
	s.metrics.SetOpenObligations(openCount)

	result := &ports.SettlementResult{
		Obligation: ob,
		Mode:       mode,
		Paid:       payNow,
		Redeemed:   redeemed,
		Completed:  completed,
	}

	s.log.Info().
		Str("buyer", ob.BuyerID.String()).
		Str("merchant", ob.MerchantID.String()).
		Int64("sequence", ob.Sequence).
		Str("mode", string(mode)).
		Int64("requested", req.Amount).
		Int64("paid", payNow).
		Int64("fulfilled", ob.AmountFulfilled).
		Bool("completed", completed).
		Msg("obligation settled")

	if s.webhookSvc != nil {
		if err := s.webhookSvc.EnqueueSettlement(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("obligation", obKey).Msg("failed to enqueue settlement webhook")
		}
	}

	return result, nil
}
