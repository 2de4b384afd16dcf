package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/core/ports/mocks"
	"yield-bnpl/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newContext builds a test context whose request carries body as JSON and
// whose caller is already authenticated.
func newContext(method, path string, body interface{}, caller *domain.Caller) (*gin.Context, *httptest.ResponseRecorder) {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	if caller != nil {
		c.Set(middleware.CtxCaller, *caller)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Stake ---

func TestStake_Success(t *testing.T) {
	stakeSvc := mocks.NewMockStakeService(gomock.NewController(t))
	h := NewStakeHandler(stakeSvc)

	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}
	stakeSvc.EXPECT().Stake(gomock.Any(), ports.StakeRequest{Caller: buyer, Amount: 1000}).Return(&domain.StakeAccount{
		BuyerID:           buyer.ID,
		StakedPrincipal:   1000,
		UnlockableBalance: 1000,
	}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/stake", gin.H{"amount": 1000}, &buyer)
	h.Stake(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, buyer.ID.String(), data["buyer_id"])
	assert.EqualValues(t, 1000, data["staked_principal"])
	assert.Equal(t, buyer.ID.String(), c.GetString(middleware.CtxAuditResource))
}

func TestStake_MissingCaller(t *testing.T) {
	h := NewStakeHandler(mocks.NewMockStakeService(gomock.NewController(t)))

	c, w := newContext(http.MethodPost, "/api/v1/stake", gin.H{"amount": 1}, nil)
	h.Stake(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStake_MalformedBody(t *testing.T) {
	h := NewStakeHandler(mocks.NewMockStakeService(gomock.NewController(t)))
	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}

	c, w := newContext(http.MethodPost, "/api/v1/stake", gin.H{"amount": "lots"}, &buyer)
	h.Stake(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decodeErrorCode(t, w))
}

func TestUnstake_InsufficientBalance(t *testing.T) {
	stakeSvc := mocks.NewMockStakeService(gomock.NewController(t))
	h := NewStakeHandler(stakeSvc)
	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}

	stakeSvc.EXPECT().Unstake(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientBalance("unlockable stake"))

	c, w := newContext(http.MethodPost, "/api/v1/unstake", gin.H{"amount": 5000}, &buyer)
	h.Unstake(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, apperror.CodeInsufficientBalance, decodeErrorCode(t, w))
}

func TestGetStakeAccount_NotFound(t *testing.T) {
	stakeSvc := mocks.NewMockStakeService(gomock.NewController(t))
	h := NewStakeHandler(stakeSvc)
	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}

	stakeSvc.EXPECT().GetAccount(gomock.Any(), buyer.ID).Return(nil, apperror.ErrNotFound("Stake account"))

	c, w := newContext(http.MethodGet, "/api/v1/stake", nil, &buyer)
	h.GetAccount(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Merchants ---

func TestRegisterMerchant_Self(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc, mocks.NewMockReportingService(ctrl))

	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}
	hook := "https://shop.example/hooks"
	merchantSvc.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.RegisterMerchantRequest) (*ports.RegisterMerchantResponse, error) {
			assert.Equal(t, merchant.ID, req.MerchantID)
			require.NotNil(t, req.WebhookURL)
			assert.Equal(t, hook, *req.WebhookURL)
			return &ports.RegisterMerchantResponse{
				Account:       domain.NewMerchantAccount(merchant.ID, time.Now()),
				WebhookSecret: "whsec_abc",
			}, nil
		})

	// merchant_id in the body is ignored for self-registration
	c, w := newContext(http.MethodPost, "/api/v1/merchants", gin.H{"merchant_id": uuid.NewString(), "webhook_url": hook}, &merchant)
	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, merchant.ID.String(), data["merchant_id"])
	assert.Equal(t, "APPROVED", data["status"])
	assert.Equal(t, "whsec_abc", data["webhook_secret"])
}

func TestRegisterMerchant_AdminRequiresMerchantID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewMerchantHandler(mocks.NewMockMerchantService(ctrl), mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	c, w := newContext(http.MethodPost, "/api/v1/merchants", gin.H{}, &admin)
	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterMerchant_AdminOnBehalf(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc, mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	merchantID := uuid.New()

	merchantSvc.EXPECT().Register(gomock.Any(), ports.RegisterMerchantRequest{Caller: admin, MerchantID: merchantID}).
		Return(&ports.RegisterMerchantResponse{Account: domain.NewMerchantAccount(merchantID, time.Now()), WebhookSecret: "s"}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/merchants", gin.H{"merchant_id": merchantID.String()}, &admin)
	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegisterMerchant_Duplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc, mocks.NewMockReportingService(ctrl))
	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}

	merchantSvc.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInvalidState("Merchant is already registered"))

	c, w := newContext(http.MethodPost, "/api/v1/merchants", gin.H{}, &merchant)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSetMerchantStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantSvc := mocks.NewMockMerchantService(ctrl)
	h := NewMerchantHandler(merchantSvc, mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	merchantID := uuid.New()

	account := domain.NewMerchantAccount(merchantID, time.Now())
	account.Status = domain.MerchantStatusPending
	merchantSvc.EXPECT().SetStatus(gomock.Any(), ports.SetMerchantStatusRequest{
		Caller:     admin,
		MerchantID: merchantID,
		Status:     domain.MerchantStatusPending,
	}).Return(account, nil)

	c, w := newContext(http.MethodPut, "/", gin.H{"status": "PENDING"}, &admin)
	c.Params = gin.Params{{Key: "merchant_id", Value: merchantID.String()}}
	h.SetStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", decodeData(t, w)["status"])
}

func TestSetMerchantStatus_RejectsUnknownStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewMerchantHandler(mocks.NewMockMerchantService(ctrl), mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	c, w := newContext(http.MethodPut, "/", gin.H{"status": "BANNED"}, &admin)
	c.Params = gin.Params{{Key: "merchant_id", Value: uuid.NewString()}}
	h.SetStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMerchantStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	reportingSvc := mocks.NewMockReportingService(ctrl)
	h := NewMerchantHandler(mocks.NewMockMerchantService(ctrl), reportingSvc)
	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}

	account := domain.NewMerchantAccount(merchant.ID, time.Now())
	account.TotalSettled = 900
	reportingSvc.EXPECT().GetMerchantStats(gomock.Any(), merchant.ID).Return(&ports.MerchantStats{
		Account:         account,
		OpenObligations: 2,
		Completed:       5,
		Journal:         &ports.TransactionStats{TotalHarvest: 600, TotalDirect: 300},
		WalletBalance:   900,
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/merchants/me", nil, &merchant)
	h.GetMe(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 2, data["open_obligations"])
	assert.EqualValues(t, 600, data["total_settled_harvest"])
	assert.EqualValues(t, 300, data["total_settled_direct"])
	assert.EqualValues(t, 900, data["merchant"].(map[string]interface{})["total_settled"])
}

// --- Purchases ---

func purchaseBody(buyerID, merchantID uuid.UUID) gin.H {
	return gin.H{
		"buyer_id":        buyerID.String(),
		"merchant_id":     merchantID.String(),
		"reference_id":    "order-1001",
		"purchase_amount": 1000,
	}
}

func TestAuthorizePurchase_Success(t *testing.T) {
	purchaseSvc := mocks.NewMockPurchaseService(gomock.NewController(t))
	h := NewPurchaseHandler(purchaseSvc)
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	buyerID, merchantID := uuid.New(), uuid.New()

	purchaseSvc.EXPECT().AuthorizePurchase(gomock.Any(), ports.PurchaseRequest{
		Caller:         admin,
		BuyerID:        buyerID,
		MerchantID:     merchantID,
		ReferenceID:    "order-1001",
		PurchaseAmount: 1000,
	}).Return(&domain.PaymentObligation{
		ObligationKey:    domain.ObligationKey{BuyerID: buyerID, MerchantID: merchantID, Sequence: 0},
		ReferenceID:      "order-1001",
		AmountDue:        1000,
		LockedCollateral: 13125,
		Status:           domain.ObligationStatusOpen,
		APYBps:           800,
		BufferBps:        500,
		CreatedAt:        time.Now(),
	}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/purchases", purchaseBody(buyerID, merchantID), &admin)
	h.Authorize(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 13125, data["locked_collateral"])
	assert.EqualValues(t, 1000, data["remaining"])
	assert.Equal(t, "OPEN", data["status"])
}

func TestAuthorizePurchase_CustomBuffer(t *testing.T) {
	purchaseSvc := mocks.NewMockPurchaseService(gomock.NewController(t))
	h := NewPurchaseHandler(purchaseSvc)
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	buyerID, merchantID := uuid.New(), uuid.New()

	purchaseSvc.EXPECT().AuthorizePurchase(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.PurchaseRequest) (*domain.PaymentObligation, error) {
			require.NotNil(t, req.BufferBps)
			assert.Equal(t, int64(0), *req.BufferBps)
			return &domain.PaymentObligation{ObligationKey: domain.ObligationKey{BuyerID: buyerID, MerchantID: merchantID}}, nil
		})

	body := purchaseBody(buyerID, merchantID)
	body["buffer_bps"] = 0
	c, w := newContext(http.MethodPost, "/api/v1/purchases", body, &admin)
	h.Authorize(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAuthorizePurchase_ValidationError(t *testing.T) {
	h := NewPurchaseHandler(mocks.NewMockPurchaseService(gomock.NewController(t)))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	body := purchaseBody(uuid.New(), uuid.New())
	body["reference_id"] = "order 1001; DROP"
	c, w := newContext(http.MethodPost, "/api/v1/purchases", body, &admin)
	h.Authorize(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizePurchase_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"merchant not approved", apperror.ErrInvalidState("Merchant is not approved"), http.StatusConflict, apperror.CodeInvalidState},
		{"apy zero", apperror.ErrInvalidAPY(), http.StatusUnprocessableEntity, apperror.CodeInvalidAPY},
		{"short stake", apperror.ErrInsufficientBalance("unlockable stake"), http.StatusPaymentRequired, apperror.CodeInsufficientBalance},
		{"reserve down", apperror.ErrAdapter(errors.New("timeout")), http.StatusBadGateway, apperror.CodeAdapter},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "SYS_000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purchaseSvc := mocks.NewMockPurchaseService(gomock.NewController(t))
			h := NewPurchaseHandler(purchaseSvc)
			admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
			purchaseSvc.EXPECT().AuthorizePurchase(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			c, w := newContext(http.MethodPost, "/api/v1/purchases", purchaseBody(uuid.New(), uuid.New()), &admin)
			h.Authorize(c)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeErrorCode(t, w))
		})
	}
}

// --- Obligations ---

func settlementBody(key domain.ObligationKey, amount int64) gin.H {
	return gin.H{
		"buyer_id":    key.BuyerID.String(),
		"merchant_id": key.MerchantID.String(),
		"sequence":    key.Sequence,
		"amount":      amount,
	}
}

func TestHarvest_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewObligationHandler(settlementSvc, mocks.NewMockReportingService(ctrl))
	crank := domain.Caller{ID: uuid.New(), Role: domain.RoleCrank}
	key := domain.ObligationKey{BuyerID: uuid.New(), MerchantID: uuid.New(), Sequence: 0}

	settlementSvc.EXPECT().SettleHarvest(gomock.Any(), ports.SettlementRequest{Caller: crank, Key: key, Amount: 400}).
		Return(&ports.SettlementResult{
			Obligation: &domain.PaymentObligation{ObligationKey: key, AmountDue: 1000, AmountFulfilled: 400, Status: domain.ObligationStatusOpen},
			Mode:       domain.SettlementModeHarvest,
			Paid:       400,
			Redeemed:   400,
		}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/obligations/harvest", settlementBody(key, 400), &crank)
	h.Harvest(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "HARVEST", data["mode"])
	assert.EqualValues(t, 400, data["paid"])
	assert.Equal(t, false, data["completed"])
	assert.EqualValues(t, 600, data["obligation"].(map[string]interface{})["remaining"])
	assert.Equal(t, key.String(), c.GetString(middleware.CtxAuditResource))
}

func TestHarvest_SequenceRequired(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewObligationHandler(mocks.NewMockSettlementService(ctrl), mocks.NewMockReportingService(ctrl))
	crank := domain.Caller{ID: uuid.New(), Role: domain.RoleCrank}

	c, w := newContext(http.MethodPost, "/", gin.H{
		"buyer_id":    uuid.NewString(),
		"merchant_id": uuid.NewString(),
		"amount":      10,
	}, &crank)
	h.Harvest(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaim_CompletedObligation(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewObligationHandler(settlementSvc, mocks.NewMockReportingService(ctrl))
	key := domain.ObligationKey{BuyerID: uuid.New(), MerchantID: uuid.New(), Sequence: 2}
	merchant := domain.Caller{ID: key.MerchantID, Role: domain.RoleMerchant}

	settlementSvc.EXPECT().ClaimDirect(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInvalidState("Obligation is already completed"))

	c, w := newContext(http.MethodPost, "/api/v1/obligations/claim", settlementBody(key, 50), &merchant)
	h.Claim(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetObligation_PartyOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	reportingSvc := mocks.NewMockReportingService(ctrl)
	h := NewObligationHandler(mocks.NewMockSettlementService(ctrl), reportingSvc)
	key := domain.ObligationKey{BuyerID: uuid.New(), MerchantID: uuid.New(), Sequence: 1}
	params := gin.Params{
		{Key: "buyer_id", Value: key.BuyerID.String()},
		{Key: "merchant_id", Value: key.MerchantID.String()},
		{Key: "sequence", Value: "1"},
	}

	stranger := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}
	c, w := newContext(http.MethodGet, "/", nil, &stranger)
	c.Params = params
	h.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	reportingSvc.EXPECT().GetObligation(gomock.Any(), key).Return(&domain.PaymentObligation{ObligationKey: key, AmountDue: 10}, nil)
	owner := domain.Caller{ID: key.BuyerID, Role: domain.RoleBuyer}
	c, w = newContext(http.MethodGet, "/", nil, &owner)
	c.Params = params
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, key.String(), decodeData(t, w)["key"])
}

func TestGetObligation_BadSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewObligationHandler(mocks.NewMockSettlementService(ctrl), mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	c, w := newContext(http.MethodGet, "/", nil, &admin)
	c.Params = gin.Params{
		{Key: "buyer_id", Value: uuid.NewString()},
		{Key: "merchant_id", Value: uuid.NewString()},
		{Key: "sequence", Value: "-1"},
	}
	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListObligations_ScopedToBuyer(t *testing.T) {
	ctrl := gomock.NewController(t)
	reportingSvc := mocks.NewMockReportingService(ctrl)
	h := NewObligationHandler(mocks.NewMockSettlementService(ctrl), reportingSvc)
	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}

	reportingSvc.EXPECT().ListObligations(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.ObligationListParams) ([]domain.PaymentObligation, int64, error) {
			require.NotNil(t, p.BuyerID)
			assert.Equal(t, buyer.ID, *p.BuyerID)
			require.NotNil(t, p.Status)
			assert.Equal(t, domain.ObligationStatusOpen, *p.Status)
			assert.Equal(t, 2, p.Page)
			assert.Equal(t, 5, p.PageSize)
			return []domain.PaymentObligation{{ObligationKey: domain.ObligationKey{BuyerID: buyer.ID}}}, 6, nil
		})

	// buyer_id in the query cannot widen a buyer's view
	c, w := newContext(http.MethodGet, "/api/v1/obligations?status=OPEN&page=2&page_size=5&buyer_id="+uuid.NewString(), nil, &buyer)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["data"], 1)
	page := resp["page"].(map[string]interface{})
	assert.EqualValues(t, 6, page["total"])
	assert.Equal(t, false, page["has_more"])
}

func TestListObligations_InvalidStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewObligationHandler(mocks.NewMockSettlementService(ctrl), mocks.NewMockReportingService(ctrl))
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	c, w := newContext(http.MethodGet, "/api/v1/ops/obligations?status=CLOSED", nil, &admin)
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Vault & reporting ---

func TestBootstrap(t *testing.T) {
	vaultSvc := mocks.NewMockVaultService(gomock.NewController(t))
	h := NewVaultHandler(vaultSvc)
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}

	vaultSvc.EXPECT().Bootstrap(gomock.Any(), admin).Return(&domain.ProtocolVault{AdminID: admin.ID}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/ops/vault/bootstrap", nil, &admin)
	h.Bootstrap(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, admin.ID.String(), decodeData(t, w)["admin_id"])
}

func TestFund(t *testing.T) {
	vaultSvc := mocks.NewMockVaultService(gomock.NewController(t))
	h := NewVaultHandler(vaultSvc)
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	account := uuid.New()

	vaultSvc.EXPECT().FundWallet(gomock.Any(), ports.FundRequest{Caller: admin, AccountID: account, Amount: 5000}).Return(int64(7000), nil)

	c, w := newContext(http.MethodPost, "/api/v1/ops/wallets/fund", gin.H{"account_id": account.String(), "amount": 5000}, &admin)
	h.Fund(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7000, decodeData(t, w)["balance"])
}

func TestGetBalance_OperatorMayQueryAnyAccount(t *testing.T) {
	reportingSvc := mocks.NewMockReportingService(gomock.NewController(t))
	h := NewReportingHandler(reportingSvc)
	account := uuid.New()

	reportingSvc.EXPECT().GetWalletBalance(gomock.Any(), account).Return(int64(42), nil)
	admin := domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin}
	c, w := newContext(http.MethodGet, "/api/v1/ops/wallets/balance?account_id="+account.String(), nil, &admin)
	h.GetBalance(c)
	assert.Equal(t, http.StatusOK, w.Code)

	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}
	reportingSvc.EXPECT().GetWalletBalance(gomock.Any(), buyer.ID).Return(int64(7), nil)
	c, w = newContext(http.MethodGet, "/api/v1/wallet/balance?account_id="+account.String(), nil, &buyer)
	h.GetBalance(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, decodeData(t, w)["balance"])
}

func TestListTransactions_Filters(t *testing.T) {
	reportingSvc := mocks.NewMockReportingService(gomock.NewController(t))
	h := NewReportingHandler(reportingSvc)
	merchant := domain.Caller{ID: uuid.New(), Role: domain.RoleMerchant}

	reportingSvc.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, merchant.ID, p.AccountID)
			require.NotNil(t, p.Type)
			assert.Equal(t, domain.TransactionTypeSettleHarvest, *p.Type)
			require.NotNil(t, p.From)
			assert.Equal(t, int64(1700000000), *p.From)
			assert.Nil(t, p.To)
			return []domain.Transaction{{ID: uuid.New(), TransactionType: domain.TransactionTypeSettleHarvest, AccountID: merchant.ID, Amount: 10}}, 1, nil
		})

	c, w := newContext(http.MethodGet, "/api/v1/transactions?type=SETTLE_HARVEST&from=1700000000&to=soon", nil, &merchant)
	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTransactions_ServiceError(t *testing.T) {
	reportingSvc := mocks.NewMockReportingService(gomock.NewController(t))
	h := NewReportingHandler(reportingSvc)
	buyer := domain.Caller{ID: uuid.New(), Role: domain.RoleBuyer}

	reportingSvc.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, int64(0), apperror.InternalError(errors.New("db down")))

	c, w := newContext(http.MethodGet, "/api/v1/transactions", nil, &buyer)
	h.ListTransactions(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Health & docs ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string              { return s.name }

func TestHealthCheck(t *testing.T) {
	c, w := newContext(http.MethodGet, "/health", nil, nil)
	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "reserve"})(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	c, w = newContext(http.MethodGet, "/health", nil, nil)
	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis", err: errors.New("refused")})(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
	assert.Contains(t, w.Body.String(), "refused")
}

func TestSwaggerUI(t *testing.T) {
	c, w := newContext(http.MethodGet, "/swagger", nil, nil)
	SwaggerUI(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}

func TestSwaggerSpec_Embedded(t *testing.T) {
	c, w := newContext(http.MethodGet, "/swagger/spec", nil, nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/purchases")
}

func TestSwaggerSpec_NotLoaded(t *testing.T) {
	orig := swaggerSpec
	SetSwaggerSpec(nil)
	defer SetSwaggerSpec(orig)

	c, w := newContext(http.MethodGet, "/swagger/spec", nil, nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
