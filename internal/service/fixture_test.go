package service

import (
	"context"
	"io"
	"testing"

	"yield-bnpl/internal/adapter/metrics"
	"yield-bnpl/internal/adapter/reserve/simulated"
	"yield-bnpl/internal/adapter/storage/memory"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/core/ports/mocks"
	"yield-bnpl/internal/vault"
	"yield-bnpl/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// protocolFixture wires the real services over the in-memory store and the
// simulated reserve. The default reserve yields 800 bps.
type protocolFixture struct {
	store   *memory.Store
	reserve *simulated.Reserve
	cache   *mocks.MockIdempotencyCache

	admin    domain.Caller
	crank    domain.Caller
	buyer    domain.Caller
	merchant domain.Caller

	vault      ports.VaultService
	stake      *StakeServiceImpl
	merchants  ports.MerchantService
	purchase   *PurchaseServiceImpl
	settlement *SettlementServiceImpl
	reporting  ports.ReportingService
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	t.Helper()
	return newProtocolFixtureWithReserve(t, nil)
}

// newProtocolFixtureWithReserve lets a test swap in a mock reserve.
func newProtocolFixtureWithReserve(t *testing.T, reserve ports.YieldReserve) *protocolFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := newTestLogger()

	f := &protocolFixture{
		store:    memory.NewStore(),
		reserve:  simulated.New(simulated.DefaultConfig()),
		cache:    mocks.NewMockIdempotencyCache(ctrl),
		admin:    domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin},
		crank:    domain.Caller{ID: uuid.New(), Role: domain.RoleCrank},
		buyer:    domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer},
		merchant: domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant},
	}
	if reserve == nil {
		reserve = f.reserve
	}

	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	m := metrics.Nop{}
	authority := vault.NewAuthority(f.store, f.store.Vault(), f.store.Assets(), reserve, log)

	f.vault = NewVaultService(authority, f.store.Vault(), f.store.Assets(), f.store.Transactions(), f.store, log)
	f.stake = NewStakeService(authority, f.store.StakeAccounts(), f.store.Transactions(), m, log)
	f.merchants = NewMerchantService(f.store.MerchantAccounts(), f.store.Vault(), f.store, encSvc, m, log)
	f.purchase = NewPurchaseService(authority, f.store.MerchantAccounts(), f.store.StakeAccounts(),
		f.store.Obligations(), f.store.Idempotency(), f.cache, m,
		PurchaseConfig{DefaultBufferBps: 500, MaxBufferBps: 5000, CollateralHorizonDays: 365}, log)
	f.settlement = NewSettlementService(authority, f.store.MerchantAccounts(), f.store.StakeAccounts(),
		f.store.Obligations(), f.store.Transactions(), nil, m, log)
	f.reporting = NewReportingService(f.store.Obligations(), f.store.MerchantAccounts(), f.store.Transactions(), f.store.Assets())

	f.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	f.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	_, err = f.vault.Bootstrap(context.Background(), f.admin)
	require.NoError(t, err)
	return f
}

func (f *protocolFixture) fund(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	_, err := f.vault.FundWallet(context.Background(), ports.FundRequest{Caller: f.admin, AccountID: account, Amount: amount})
	require.NoError(t, err)
}

func (f *protocolFixture) registerMerchant(t *testing.T) {
	t.Helper()
	_, err := f.merchants.Register(context.Background(), ports.RegisterMerchantRequest{Caller: f.merchant, MerchantID: f.merchant.ID})
	require.NoError(t, err)
}

// stakeAndAuthorize stakes 1000 and buys 40 at 800 bps with a
// 500 bps buffer.
func (f *protocolFixture) stakeAndAuthorize(t *testing.T) *domain.PaymentObligation {
	t.Helper()
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 1000)
	f.registerMerchant(t)

	_, err := f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 1000})
	require.NoError(t, err)

	ob, err := f.purchase.AuthorizePurchase(ctx, ports.PurchaseRequest{
		Caller:         f.admin,
		BuyerID:        f.buyer.ID,
		MerchantID:     f.merchant.ID,
		ReferenceID:    "order-1",
		PurchaseAmount: 40,
	})
	require.NoError(t, err)
	return ob
}

func (f *protocolFixture) stakeAccount(t *testing.T) *domain.StakeAccount {
	t.Helper()
	acct, err := f.stake.GetAccount(context.Background(), f.buyer.ID)
	require.NoError(t, err)
	return acct
}

func (f *protocolFixture) vaultState(t *testing.T) *domain.ProtocolVault {
	t.Helper()
	v, err := f.vault.GetVault(context.Background())
	require.NoError(t, err)
	return v
}

func (f *protocolFixture) balance(t *testing.T, account uuid.UUID) int64 {
	t.Helper()
	b, err := f.reporting.GetWalletBalance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperror.HasCode(err, code), "expected %s, got %v", code, err)
}

// newUnbootstrappedStakeService returns a stake service over an empty store.
func newUnbootstrappedStakeService(f *protocolFixture) *StakeServiceImpl {
	store := memory.NewStore()
	authority := vault.NewAuthority(store, store.Vault(), store.Assets(), f.reserve, newTestLogger())
	return NewStakeService(authority, store.StakeAccounts(), store.Transactions(), metrics.Nop{}, newTestLogger())
}
