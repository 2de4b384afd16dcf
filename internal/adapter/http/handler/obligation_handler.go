package handler

import (
	"context"

	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
)

// ObligationHandler handles settlement and obligation queries.
type ObligationHandler struct {
	settlementSvc ports.SettlementService
	reportingSvc  ports.ReportingService
}

// NewObligationHandler creates a new ObligationHandler.
func NewObligationHandler(settlementSvc ports.SettlementService, reportingSvc ports.ReportingService) *ObligationHandler {
	return &ObligationHandler{settlementSvc: settlementSvc, reportingSvc: reportingSvc}
}

// Harvest handles POST /api/v1/obligations/harvest.
func (h *ObligationHandler) Harvest(c *gin.Context) {
	h.settle(c, h.settlementSvc.SettleHarvest)
}

// Claim handles POST /api/v1/obligations/claim.
func (h *ObligationHandler) Claim(c *gin.Context) {
	h.settle(c, h.settlementSvc.ClaimDirect)
}

func (h *ObligationHandler) settle(c *gin.Context, op func(context.Context, ports.SettlementRequest) (*ports.SettlementResult, error)) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req dto.SettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	buyerID, err := parseUUID(req.BuyerID, "buyer_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	merchantID, err := parseUUID(req.MerchantID, "merchant_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	key := domain.ObligationKey{BuyerID: buyerID, MerchantID: merchantID, Sequence: *req.Sequence}

	result, err := op(c.Request.Context(), ports.SettlementRequest{Caller: caller, Key: key, Amount: req.Amount})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, key.String())
	response.OK(c, dto.SettlementResponse{
		Obligation: dto.NewObligationResponse(result.Obligation),
		Mode:       string(result.Mode),
		Paid:       result.Paid,
		Redeemed:   result.Redeemed,
		Completed:  result.Completed,
	})
}

// Get handles GET /obligations/:buyer_id/:merchant_id/:sequence. Buyers and
// merchants see only obligations they are party to.
func (h *ObligationHandler) Get(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	key, err := obligationKeyParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(caller, key) {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	ob, err := h.reportingSvc.GetObligation(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewObligationResponse(ob))
}

// List handles GET /obligations. Buyers and merchants are scoped to their own
// obligations; operators may filter by buyer_id and merchant_id.
func (h *ObligationHandler) List(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	params := ports.ObligationListParams{Page: page, PageSize: pageSize}

	switch caller.Role {
	case domain.RoleBuyer:
		id := caller.ID
		params.BuyerID = &id
	case domain.RoleMerchant:
		id := caller.ID
		params.MerchantID = &id
	}
	if params.BuyerID == nil {
		if raw := c.Query("buyer_id"); raw != "" {
			id, err := parseUUID(raw, "buyer_id")
			if err != nil {
				response.Error(c, err)
				return
			}
			params.BuyerID = &id
		}
	}
	if params.MerchantID == nil {
		if raw := c.Query("merchant_id"); raw != "" {
			id, err := parseUUID(raw, "merchant_id")
			if err != nil {
				response.Error(c, err)
				return
			}
			params.MerchantID = &id
		}
	}
	if s := c.Query("status"); s != "" {
		status := domain.ObligationStatus(s)
		if status != domain.ObligationStatusOpen && status != domain.ObligationStatusCompleted {
			response.Error(c, apperror.Validation("status must be OPEN or COMPLETED"))
			return
		}
		params.Status = &status
	}

	obligations, total, err := h.reportingSvc.ListObligations(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ObligationResponse, 0, len(obligations))
	for i := range obligations {
		items = append(items, dto.NewObligationResponse(&obligations[i]))
	}
	response.Paged(c, items, page, pageSize, total)
}

func canView(caller domain.Caller, key domain.ObligationKey) bool {
	switch caller.Role {
	case domain.RoleAdmin, domain.RoleCrank:
		return true
	case domain.RoleBuyer:
		return caller.ID == key.BuyerID
	case domain.RoleMerchant:
		return caller.ID == key.MerchantID
	}
	return false
}
