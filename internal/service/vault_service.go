package service

import (
	"context"
	"errors"
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

type vaultService struct {
	vault      *vault.Authority
	vaultRepo  ports.VaultRepository
	assets     ports.AssetLedger
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewVaultService creates the protocol vault service.
func NewVaultService(
	authority *vault.Authority,
	vaultRepo ports.VaultRepository,
	assets ports.AssetLedger,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) ports.VaultService {
	return &vaultService{
		vault:      authority,
		vaultRepo:  vaultRepo,
		assets:     assets,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// Bootstrap creates the vault row with the caller as admin. It can run once.
func (s *vaultService) Bootstrap(ctx context.Context, caller domain.Caller) (*domain.ProtocolVault, error) {
	if caller.Role != domain.RoleAdmin || caller.ID == uuid.Nil {
		return nil, apperror.ErrUnauthorized()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	existing, err := s.vaultRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock vault: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrInvalidState("Protocol vault is already bootstrapped")
	}

	now := time.Now().UTC()
	v := &domain.ProtocolVault{
		AdminID:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.vaultRepo.Create(ctx, dbTx, v); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrInvalidState("Protocol vault is already bootstrapped")
		}
		return nil, apperror.InternalError(fmt.Errorf("create vault: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("admin", caller.ID.String()).Msg("protocol vault bootstrapped")
	return v, nil
}

// FundWallet credits an account's liquid balance. Admin only.
func (s *vaultService) FundWallet(ctx context.Context, req ports.FundRequest) (int64, error) {
	if req.Caller.Role != domain.RoleAdmin {
		return 0, apperror.ErrUnauthorized()
	}
	if req.Amount <= 0 {
		return 0, apperror.ErrInvalidState("Fund amount must be positive")
	}

	sess, err := s.vault.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Rollback(ctx)

	if err := sess.RequireAdmin(req.Caller); err != nil {
		return 0, err
	}

	balance, err := s.assets.Credit(ctx, sess.Tx(), req.AccountID, req.Amount)
	if err != nil {
		if checked.IsArithmetic(err) {
			return 0, apperror.ErrArithmeticOverflow(err)
		}
		return 0, apperror.InternalError(fmt.Errorf("credit account: %w", err))
	}

	if err := s.txRepo.Create(ctx, sess.Tx(), &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: domain.TransactionTypeFund,
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		CreatedBy:       req.Caller.ID,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("journal fund: %w", err))
	}

	if err := sess.Commit(ctx); err != nil {
		return 0, err
	}

	s.log.Info().
		Str("account", req.AccountID.String()).
		Int64("amount", req.Amount).
		Int64("balance", balance).
		Msg("account funded")

	return balance, nil
}

func (s *vaultService) GetVault(ctx context.Context) (*domain.ProtocolVault, error) {
	v, err := s.vaultRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if v == nil {
		return nil, apperror.ErrNotFound("Protocol vault")
	}
	return v, nil
}
