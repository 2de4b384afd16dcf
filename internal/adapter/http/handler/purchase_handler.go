package handler

import (
	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
)

// PurchaseHandler handles purchase authorization.
type PurchaseHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchaseSvc ports.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseSvc: purchaseSvc}
}

// Authorize handles POST /api/v1/purchases. Retrying with the same
// merchant_id and reference_id returns the original obligation.
func (h *PurchaseHandler) Authorize(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req dto.PurchaseRequest
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

	ob, err := h.purchaseSvc.AuthorizePurchase(c.Request.Context(), ports.PurchaseRequest{
		Caller:         caller,
		BuyerID:        buyerID,
		MerchantID:     merchantID,
		ReferenceID:    req.ReferenceID,
		PurchaseAmount: req.PurchaseAmount,
		BufferBps:      req.BufferBps,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, ob.Key().String())
	response.Created(c, dto.NewObligationResponse(ob))
}
