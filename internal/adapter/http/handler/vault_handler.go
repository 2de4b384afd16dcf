package handler

import (
	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
)

// VaultHandler handles protocol vault administration and asset funding.
type VaultHandler struct {
	vaultSvc ports.VaultService
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(vaultSvc ports.VaultService) *VaultHandler {
	return &VaultHandler{vaultSvc: vaultSvc}
}

// Bootstrap handles POST /api/v1/ops/vault/bootstrap.
func (h *VaultHandler) Bootstrap(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	v, err := h.vaultSvc.Bootstrap(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, v.AdminID.String())
	response.Created(c, dto.NewVaultResponse(v))
}

// Get handles GET /api/v1/ops/vault.
func (h *VaultHandler) Get(c *gin.Context) {
	v, err := h.vaultSvc.GetVault(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVaultResponse(v))
}

// Fund handles POST /api/v1/ops/wallets/fund.
func (h *VaultHandler) Fund(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req dto.FundRequest
	if !bindJSON(c, &req) {
		return
	}
	accountID, err := parseUUID(req.AccountID, "account_id")
	if err != nil {
		response.Error(c, err)
		return
	}

	balance, err := h.vaultSvc.FundWallet(c.Request.Context(), ports.FundRequest{
		Caller:    caller,
		AccountID: accountID,
		Amount:    req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, accountID.String())
	response.OK(c, dto.BalanceResponse{AccountID: accountID.String(), Balance: balance})
}

// ReportingHandler handles an account's balance and journal queries.
type ReportingHandler struct {
	reportingSvc ports.ReportingService
}

// NewReportingHandler creates a new ReportingHandler.
func NewReportingHandler(reportingSvc ports.ReportingService) *ReportingHandler {
	return &ReportingHandler{reportingSvc: reportingSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *ReportingHandler) GetBalance(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	accountID := caller.ID
	if isOperator(caller) {
		if raw := c.Query("account_id"); raw != "" {
			id, err := parseUUID(raw, "account_id")
			if err != nil {
				response.Error(c, err)
				return
			}
			accountID = id
		}
	}

	balance, err := h.reportingSvc.GetWalletBalance(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{AccountID: accountID.String(), Balance: balance})
}

// ListTransactions handles GET /api/v1/transactions.
func (h *ReportingHandler) ListTransactions(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	params := ports.TransactionListParams{AccountID: caller.ID, Page: page, PageSize: pageSize}

	if isOperator(caller) {
		if raw := c.Query("account_id"); raw != "" {
			id, err := parseUUID(raw, "account_id")
			if err != nil {
				response.Error(c, err)
				return
			}
			params.AccountID = id
		}
	}
	if t := c.Query("type"); t != "" {
		txType := domain.TransactionType(t)
		params.Type = &txType
	}
	if f := c.Query("from"); f != "" {
		if v, err := parseUnix(f); err == nil {
			params.From = &v
		}
	}
	if t := c.Query("to"); t != "" {
		if v, err := parseUnix(t); err == nil {
			params.To = &v
		}
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.NewTransactionResponse(&txns[i]))
	}
	response.Paged(c, items, page, pageSize, total)
}

func isOperator(caller domain.Caller) bool {
	return caller.Role == domain.RoleAdmin || caller.Role == domain.RoleCrank
}
