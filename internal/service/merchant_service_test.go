package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"yield-bnpl/internal/adapter/metrics"
	"yield-bnpl/internal/adapter/storage/memory"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/core/ports/mocks"
	"yield-bnpl/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMerchantService_SelfRegister(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	url := "https://shop.example.com/hooks"

	resp, err := f.merchants.Register(ctx, ports.RegisterMerchantRequest{Caller: f.merchant, MerchantID: f.merchant.ID, WebhookURL: &url})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.WebhookSecret, "whsec_"))
	assert.Equal(t, domain.MerchantStatusApproved, resp.Account.Status)
	assert.Zero(t, resp.Account.NextSequence)
	assert.Zero(t, resp.Account.TotalSettled)
	assert.NotEqual(t, resp.WebhookSecret, resp.Account.WebhookSecretEnc)

	stored, err := f.merchants.GetAccount(ctx, f.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, url, *stored.WebhookURL)
}

func TestMerchantService_AdminRegistersOnBehalf(t *testing.T) {
	f := newProtocolFixture(t)
	merchantID := uuid.New()

	resp, err := f.merchants.Register(context.Background(), ports.RegisterMerchantRequest{Caller: f.admin, MerchantID: merchantID})
	require.NoError(t, err)
	assert.Equal(t, merchantID, resp.Account.MerchantID)
}

func TestMerchantService_RegisterRejections(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.registerMerchant(t)

	_, err := f.merchants.Register(ctx, ports.RegisterMerchantRequest{Caller: f.merchant, MerchantID: f.merchant.ID})
	requireCode(t, err, apperror.CodeInvalidState)

	_, err = f.merchants.Register(ctx, ports.RegisterMerchantRequest{Caller: f.merchant, MerchantID: uuid.New()})
	requireCode(t, err, apperror.CodeUnauthorized)

	_, err = f.merchants.Register(ctx, ports.RegisterMerchantRequest{Caller: f.buyer, MerchantID: f.buyer.ID})
	requireCode(t, err, apperror.CodeUnauthorized)
}

func TestMerchantService_DuplicateKeepsOriginal(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	ob := f.stakeAndAuthorize(t)
	require.Equal(t, int64(0), ob.Sequence)

	_, err := f.merchants.Register(ctx, ports.RegisterMerchantRequest{Caller: f.admin, MerchantID: f.merchant.ID})
	requireCode(t, err, apperror.CodeInvalidState)

	stored, err := f.merchants.GetAccount(ctx, f.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.NextSequence, "registration must not reset the counter")
}

func TestMerchantService_SetStatus(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()
	f.registerMerchant(t)

	acct, err := f.merchants.SetStatus(ctx, ports.SetMerchantStatusRequest{Caller: f.admin, MerchantID: f.merchant.ID, Status: domain.MerchantStatusPending})
	require.NoError(t, err)
	assert.Equal(t, domain.MerchantStatusPending, acct.Status)

	_, err = f.merchants.SetStatus(ctx, ports.SetMerchantStatusRequest{Caller: f.merchant, MerchantID: f.merchant.ID, Status: domain.MerchantStatusApproved})
	requireCode(t, err, apperror.CodeUnauthorized)

	_, err = f.merchants.SetStatus(ctx, ports.SetMerchantStatusRequest{Caller: f.admin, MerchantID: f.merchant.ID, Status: "SUSPENDED"})
	requireCode(t, err, apperror.CodeValidation)

	_, err = f.merchants.SetStatus(ctx, ports.SetMerchantStatusRequest{Caller: f.admin, MerchantID: uuid.New(), Status: domain.MerchantStatusApproved})
	requireCode(t, err, apperror.CodeNotFound)
}

func TestMerchantService_GetAccountNotFound(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.merchants.GetAccount(context.Background(), uuid.New())
	requireCode(t, err, apperror.CodeNotFound)
}

func TestMerchantService_EncryptionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	encSvc := mocks.NewMockEncryptionService(ctrl)
	store := memory.NewStore()
	svc := NewMerchantService(store.MerchantAccounts(), store.Vault(), store, encSvc, metrics.Nop{}, newTestLogger())

	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}
	encSvc.EXPECT().Encrypt(gomock.Any()).Return("", errors.New("kms down"))

	_, err := svc.Register(context.Background(), ports.RegisterMerchantRequest{Caller: merchant, MerchantID: merchant.ID})
	requireCode(t, err, "SYS_003")

	got, err := store.MerchantAccounts().Get(context.Background(), merchant.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// The row is absent when locked but a concurrent registration inserts it
// first; the losing insert reports the merchant as already registered.
func TestMerchantService_ConcurrentRegistrationLosesInsert(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMerchantAccountRepository(ctrl)
	store := memory.NewStore()
	encSvc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)
	svc := NewMerchantService(repo, store.Vault(), store, encSvc, metrics.Nop{}, newTestLogger())

	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}
	repo.EXPECT().GetForUpdate(gomock.Any(), gomock.Any(), merchant.ID).Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("insert merchant account: %w", ports.ErrDuplicate))

	_, err = svc.Register(context.Background(), ports.RegisterMerchantRequest{Caller: merchant, MerchantID: merchant.ID})
	requireCode(t, err, apperror.CodeInvalidState)
}
