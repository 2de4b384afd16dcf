package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/vault"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/checked"

	"github.com/rs/zerolog"
)

const defaultIdempotencyTTL = 24 * time.Hour

// PurchaseConfig holds collateral sizing parameters.
type PurchaseConfig struct {
	DefaultBufferBps      int64
	MaxBufferBps          int64
	CollateralHorizonDays int64
	IdempotencyTTL        time.Duration // Redis cache lifetime; 24h when unset
}

// PurchaseServiceImpl implements ports.PurchaseService.
type PurchaseServiceImpl struct {
	vault          *vault.Authority
	merchantRepo   ports.MerchantAccountRepository
	stakeRepo      ports.StakeAccountRepository
	obligationRepo ports.ObligationRepository
	idempRepo      ports.IdempotencyRepository
	idempCache     ports.IdempotencyCache
	metrics        ports.ProtocolMetrics
	cfg            PurchaseConfig
	log            zerolog.Logger
}

// NewPurchaseService creates a new PurchaseServiceImpl.
func NewPurchaseService(
	authority *vault.Authority,
	merchantRepo ports.MerchantAccountRepository,
	stakeRepo ports.StakeAccountRepository,
	obligationRepo ports.ObligationRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	metrics ports.ProtocolMetrics,
	cfg PurchaseConfig,
	log zerolog.Logger,
) *PurchaseServiceImpl {
	return &PurchaseServiceImpl{
		vault:          authority,
		merchantRepo:   merchantRepo,
		stakeRepo:      stakeRepo,
		obligationRepo: obligationRepo,
		idempRepo:      idempRepo,
		idempCache:     idempCache,
		metrics:        metrics,
		cfg:            cfg,
		log:            log,
	}
}

// AuthorizePurchase sizes collateral from the reserve's current yield, locks
// it out of the buyer's unlockable balance and opens an obligation under the
// merchant's next sequence number. Retries with the same reference return the
// original obligation.
func (s *PurchaseServiceImpl) AuthorizePurchase(ctx context.Context, req ports.PurchaseRequest) (ob *domain.PaymentObligation, err error) {
	defer func() { s.metrics.ObserveOperation("authorize_purchase", err) }()

	if req.Caller.Role != domain.RoleAdmin {
		return nil, apperror.ErrUnauthorized()
	}
	if req.ReferenceID == "" {
		return nil, apperror.Validation("reference_id is required")
	}
	bufferBps := s.cfg.DefaultBufferBps
	if req.BufferBps != nil {
		bufferBps = *req.BufferBps
	}
	if bufferBps < 0 || (s.cfg.MaxBufferBps > 0 && bufferBps > s.cfg.MaxBufferBps) {
		return nil, apperror.Validation(fmt.Sprintf("buffer_bps must be between 0 and %d", s.cfg.MaxBufferBps))
	}

	idempKey := domain.BuildIdempotencyKey(req.MerchantID, req.ReferenceID)

	// Layer 1: Redis idempotency check
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedObligation(cached)
	}

	// Layer 2: DB idempotency check
	idempLog, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return s.unmarshalCachedObligation(idempLog.ResponseJSON)
	}

	rates, err := s.vault.Rates(ctx)
	if err != nil {
		return nil, err
	}
	apyBps, err := domain.DepositAPYBps(rates)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRates) {
			return nil, apperror.ErrAdapter(err)
		}
		return nil, apperror.ErrInvalidAPY()
	}

	sess, err := s.vault.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	if err := sess.RequireAdmin(req.Caller); err != nil {
		return nil, err
	}

	merchant, err := s.merchantRepo.GetForUpdate(ctx, sess.Tx(), req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("Merchant account")
	}

	// A retry racing the original waits on the merchant lock above; once it
	// holds the lock the original has committed or rolled back.
	idempLog, err = s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return s.unmarshalCachedObligation(idempLog.ResponseJSON)
	}
	if !merchant.IsApproved() {
		return nil, apperror.ErrInvalidState("Merchant is not approved")
	}
	if req.PurchaseAmount <= 0 {
		return nil, apperror.ErrInvalidState("Purchase amount must be positive")
	}

	sizing, err := domain.SizeCollateral(req.PurchaseAmount, apyBps, bufferBps, s.cfg.CollateralHorizonDays)
	if err != nil {
		if checked.IsArithmetic(err) {
			return nil, apperror.ErrArithmeticOverflow(err)
		}
		return nil, apperror.InternalError(fmt.Errorf("size collateral: %w", err))
	}

	buyer, err := s.stakeRepo.GetForUpdate(ctx, sess.Tx(), req.BuyerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock stake account: %w", err))
	}
	if buyer == nil || buyer.UnlockableBalance < sizing.Locked {
		return nil, apperror.ErrInsufficientBalance("unlockable balance for collateral")
	}

	unlockable, err := checked.Sub(buyer.UnlockableBalance, sizing.Locked)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	locked, err := checked.Add(buyer.LockedCollateral, sizing.Locked)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	nextSeq, err := checked.Add(merchant.NextSequence, 1)
	if err != nil {
		return nil, apperror.ErrArithmeticOverflow(err)
	}
	if err := sess.ObligationOpened(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ob = &domain.PaymentObligation{
		ObligationKey: domain.ObligationKey{
			BuyerID:    req.BuyerID,
			MerchantID: req.MerchantID,
			Sequence:   merchant.NextSequence,
		},
		ReferenceID:      req.ReferenceID,
		AmountDue:        req.PurchaseAmount,
		LockedCollateral: sizing.Locked,
		AmountFulfilled:  0,
		Status:           domain.ObligationStatusOpen,
		APYBps:           apyBps,
		BufferBps:        bufferBps,
		CreatedBy:        req.Caller.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	buyer.UnlockableBalance = unlockable
	buyer.LockedCollateral = locked
	buyer.UpdatedAt = now
	merchant.NextSequence = nextSeq
	merchant.UpdatedAt = now

	if err := s.stakeRepo.Update(ctx, sess.Tx(), buyer); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update stake account: %w", err))
	}
	if err := s.merchantRepo.Update(ctx, sess.Tx(), merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}
	if err := s.obligationRepo.Create(ctx, sess.Tx(), ob); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create obligation: %w", err))
	}

	// Persist: idempotency log
	respJSON, err := json.Marshal(ob)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	if err := s.idempRepo.Create(ctx, sess.Tx(), &domain.IdempotencyLog{
		Key:          idempKey,
		ResourceID:   ob.Key().String(),
		ResponseJSON: respJSON,
		CreatedAt:    now,
	}); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			sess.Rollback(ctx)
			return s.replayCommitted(ctx, idempKey)
		}
		return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
	}

	openCount := sess.State().OpenObligationCount
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}
	s.metrics.SetOpenObligations(openCount)

	// Post-process: cache in Redis (best-effort)
	ttl := s.cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if err := s.idempCache.Set(ctx, idempKey, respJSON, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("buyer", req.BuyerID.String()).
		Str("merchant", req.MerchantID.String()).
		Int64("sequence", ob.Sequence).
		Int64("amount", req.PurchaseAmount).
		Int64("apy_bps", apyBps).
		Int64("locked", sizing.Locked).
		Msg("purchase authorized")

	return ob, nil
}

// replayCommitted returns the obligation recorded by the concurrent request
// that won the insert for key.
func (s *PurchaseServiceImpl) replayCommitted(ctx context.Context, key string) (*domain.PaymentObligation, error) {
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency key %q conflicted but no log is stored", key))
	}
	return s.unmarshalCachedObligation(idempLog.ResponseJSON)
}

func (s *PurchaseServiceImpl) unmarshalCachedObligation(data []byte) (*domain.PaymentObligation, error) {
	var ob domain.PaymentObligation
	if err := json.Unmarshal(data, &ob); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached obligation: %w", err))
	}
	return &ob, nil
}
