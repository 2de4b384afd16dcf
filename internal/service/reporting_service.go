package service

import (
	"context"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	obligationRepo ports.ObligationRepository
	merchantRepo   ports.MerchantAccountRepository
	txRepo         ports.TransactionRepository
	assets         ports.AssetLedger
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	obligationRepo ports.ObligationRepository,
	merchantRepo ports.MerchantAccountRepository,
	txRepo ports.TransactionRepository,
	assets ports.AssetLedger,
) ports.ReportingService {
	return &reportingService{
		obligationRepo: obligationRepo,
		merchantRepo:   merchantRepo,
		txRepo:         txRepo,
		assets:         assets,
	}
}

// GetObligation looks up an obligation by its composite key.
func (s *reportingService) GetObligation(ctx context.Context, key domain.ObligationKey) (*domain.PaymentObligation, error) {
	ob, err := s.obligationRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if ob == nil {
		return nil, apperror.ErrNotFound("Obligation")
	}
	return ob, nil
}

// ListObligations returns a paginated list of obligations.
func (s *reportingService) ListObligations(ctx context.Context, params ports.ObligationListParams) ([]domain.PaymentObligation, int64, error) {
	if params.Status != nil && *params.Status != domain.ObligationStatusOpen && *params.Status != domain.ObligationStatusCompleted {
		return nil, 0, apperror.Validation("invalid status: must be OPEN or COMPLETED")
	}
	obs, total, err := s.obligationRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return obs, total, nil
}

// ListTransactions returns a paginated list of journal entries.
func (s *reportingService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.From != nil && params.To != nil && *params.From > *params.To {
		return nil, 0, apperror.Validation("from must not be after to")
	}
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

// GetWalletBalance returns the account's liquid asset balance.
func (s *reportingService) GetWalletBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	balance, err := s.assets.Balance(ctx, accountID)
	if err != nil {
		return 0, apperror.InternalError(err)
	}
	return balance, nil
}

// GetMerchantStats aggregates a merchant's obligations, journal and balance.
func (s *reportingService) GetMerchantStats(ctx context.Context, merchantID uuid.UUID) (*ports.MerchantStats, error) {
	account, err := s.merchantRepo.Get(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Merchant account")
	}

	counts, err := s.obligationRepo.CountByStatus(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	journal, err := s.txRepo.GetStats(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	balance, err := s.assets.Balance(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	return &ports.MerchantStats{
		Account:         account,
		OpenObligations: counts[domain.ObligationStatusOpen],
		Completed:       counts[domain.ObligationStatusCompleted],
		Journal:         journal,
		WalletBalance:   balance,
	}, nil
}
