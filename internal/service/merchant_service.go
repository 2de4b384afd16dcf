package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type merchantService struct {
	merchantRepo ports.MerchantAccountRepository
	vaultRepo    ports.VaultRepository
	transactor   ports.DBTransactor
	encSvc       ports.EncryptionService
	metrics      ports.ProtocolMetrics
	log          zerolog.Logger
}

// NewMerchantService creates the merchant registry.
func NewMerchantService(
	merchantRepo ports.MerchantAccountRepository,
	vaultRepo ports.VaultRepository,
	transactor ports.DBTransactor,
	encSvc ports.EncryptionService,
	metrics ports.ProtocolMetrics,
	log zerolog.Logger,
) ports.MerchantService {
	return &merchantService{
		merchantRepo: merchantRepo,
		vaultRepo:    vaultRepo,
		transactor:   transactor,
		encSvc:       encSvc,
		metrics:      metrics,
		log:          log,
	}
}

// Register creates an approved merchant account. A merchant may register
// itself; the vault admin may register anyone. Registering twice fails.
func (s *merchantService) Register(ctx context.Context, req ports.RegisterMerchantRequest) (resp *ports.RegisterMerchantResponse, err error) {
	defer func() { s.metrics.ObserveOperation("register_merchant", err) }()

	if !req.Caller.Is(domain.RoleMerchant, req.MerchantID) {
		if err := s.requireAdmin(ctx, req.Caller); err != nil {
			return nil, err
		}
	}

	secret, err := generateKey("whsec_", 32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt webhook secret: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	existing, err := s.merchantRepo.GetForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrInvalidState("Merchant is already registered")
	}

	account := domain.NewMerchantAccount(req.MerchantID, time.Now().UTC())
	account.WebhookURL = req.WebhookURL
	account.WebhookSecretEnc = secretEnc

	if err := s.merchantRepo.Create(ctx, dbTx, account); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrInvalidState("Merchant is already registered")
		}
		return nil, apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("merchant", req.MerchantID.String()).
		Str("registered_by", string(req.Caller.Role)).
		Msg("merchant registered")

	return &ports.RegisterMerchantResponse{Account: account, WebhookSecret: secret}, nil
}

// SetStatus changes a merchant's approval state. Vault admin only.
func (s *merchantService) SetStatus(ctx context.Context, req ports.SetMerchantStatusRequest) (account *domain.MerchantAccount, err error) {
	defer func() { s.metrics.ObserveOperation("set_merchant_status", err) }()

	if !req.Status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown merchant status %q", req.Status))
	}
	if err := s.requireAdmin(ctx, req.Caller); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err = s.merchantRepo.GetForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock merchant: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Merchant account")
	}

	account.Status = req.Status
	account.UpdatedAt = time.Now().UTC()
	if err := s.merchantRepo.Update(ctx, dbTx, account); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("merchant", req.MerchantID.String()).
		Str("status", string(req.Status)).
		Msg("merchant status changed")

	return account, nil
}

func (s *merchantService) GetAccount(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantAccount, error) {
	account, err := s.merchantRepo.Get(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Merchant account")
	}
	return account, nil
}

func (s *merchantService) requireAdmin(ctx context.Context, caller domain.Caller) error {
	if caller.Role != domain.RoleAdmin {
		return apperror.ErrUnauthorized()
	}
	v, err := s.vaultRepo.Get(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if v == nil {
		return apperror.ErrInvalidState("Protocol vault is not bootstrapped")
	}
	if !v.IsAdmin(caller.ID) {
		return apperror.ErrUnauthorized()
	}
	return nil
}

func generateKey(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
