package service

import (
	"context"
	"errors"
	"testing"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/core/ports/mocks"
	"yield-bnpl/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestStakeService_StakeCreatesAccount(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 1000)

	acct, err := f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(600), acct.StakedPrincipal)
	assert.Equal(t, int64(600), acct.UnlockableBalance)
	assert.Zero(t, acct.LockedCollateral)

	acct, err = f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acct.StakedPrincipal)
	assert.True(t, acct.Balanced())

	assert.Zero(t, f.balance(t, f.buyer.ID))
	assert.Equal(t, int64(1000), f.vaultState(t).TotalStaked)
	assert.Equal(t, int64(1000), f.reserve.OutstandingReceipts())

	txns, total, err := f.reporting.ListTransactions(ctx, ports.TransactionListParams{AccountID: f.buyer.ID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "one FUND and two STAKE entries")
	assert.Len(t, txns, 3)
}

func TestStakeService_StakeRejections(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 100)

	tests := []struct {
		name string
		req  ports.StakeRequest
		code string
	}{
		{"zero amount", ports.StakeRequest{Caller: f.buyer, Amount: 0}, apperror.CodeInvalidState},
		{"negative amount", ports.StakeRequest{Caller: f.buyer, Amount: -5}, apperror.CodeInvalidState},
		{"merchant caller", ports.StakeRequest{Caller: f.merchant, Amount: 10}, apperror.CodeUnauthorized},
		{"more than liquid balance", ports.StakeRequest{Caller: f.buyer, Amount: 101}, apperror.CodeInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.stake.Stake(ctx, tt.req)
			requireCode(t, err, tt.code)
		})
	}

	_, err := f.stake.GetAccount(ctx, f.buyer.ID)
	requireCode(t, err, apperror.CodeNotFound)
	assert.Equal(t, int64(100), f.balance(t, f.buyer.ID))
	assert.Zero(t, f.vaultState(t).TotalStaked)
}

func TestStakeService_ReserveFailureRollsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	reserve := mocks.NewMockYieldReserve(ctrl)
	f := newProtocolFixtureWithReserve(t, reserve)
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 500)

	reserve.EXPECT().Deposit(gomock.Any(), int64(200)).Return(int64(0), errors.New("reserve unavailable"))

	_, err := f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 200})
	requireCode(t, err, apperror.CodeAdapter)

	assert.Equal(t, int64(500), f.balance(t, f.buyer.ID), "debit must roll back")
	assert.Zero(t, f.vaultState(t).TotalStaked)
}

func TestStakeService_Unstake(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 1000)
	_, err := f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 1000})
	require.NoError(t, err)

	acct, err := f.stake.Unstake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, int64(700), acct.StakedPrincipal)
	assert.Equal(t, int64(700), acct.UnlockableBalance)
	assert.True(t, acct.Balanced())

	assert.Equal(t, int64(300), f.balance(t, f.buyer.ID))
	assert.Equal(t, int64(700), f.vaultState(t).TotalStaked)
	assert.Zero(t, f.balance(t, domain.ProtocolHoldingID))
}

func TestStakeService_UnstakeCountsAccruedYieldAsRewards(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.fund(t, f.buyer.ID, 1000)
	_, err := f.stake.Stake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 1000})
	require.NoError(t, err)

	f.reserve.SetExchangeRate(decimal.RequireFromString("1.05"))

	_, err = f.stake.Unstake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 100})
	require.NoError(t, err)

	assert.Equal(t, int64(100), f.balance(t, f.buyer.ID))
	assert.Equal(t, int64(5), f.balance(t, domain.ProtocolHoldingID))
	assert.Equal(t, int64(5), f.vaultState(t).TotalRewardsHarvested)
}

// Unstaking more than the unlockable balance changes nothing.
func TestStakeService_UnstakeBeyondUnlockable(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.stakeAndAuthorize(t)

	_, err := f.stake.Unstake(ctx, ports.StakeRequest{Caller: f.buyer, Amount: 600})
	requireCode(t, err, apperror.CodeInsufficientBalance)

	acct := f.stakeAccount(t)
	assert.Equal(t, int64(1000), acct.StakedPrincipal)
	assert.Equal(t, int64(475), acct.UnlockableBalance)
	assert.Equal(t, int64(525), acct.LockedCollateral)
	assert.Equal(t, int64(1000), f.reserve.OutstandingReceipts())
	assert.Zero(t, f.balance(t, f.buyer.ID))
}

func TestStakeService_UnstakeWithoutAccount(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.stake.Unstake(context.Background(), ports.StakeRequest{Caller: f.buyer, Amount: 1})
	requireCode(t, err, apperror.CodeInsufficientBalance)
}

func TestStakeService_RequiresBootstrap(t *testing.T) {
	f := newProtocolFixture(t)
	fresh := newUnbootstrappedStakeService(f)

	_, err := fresh.Stake(context.Background(), ports.StakeRequest{Caller: f.buyer, Amount: 1})
	requireCode(t, err, apperror.CodeInvalidState)
}
