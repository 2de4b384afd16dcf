package handler

import (
	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MerchantHandler handles merchant registration, approval and stats.
type MerchantHandler struct {
	merchantSvc  ports.MerchantService
	reportingSvc ports.ReportingService
}

// NewMerchantHandler creates a new merchant handler.
func NewMerchantHandler(merchantSvc ports.MerchantService, reportingSvc ports.ReportingService) *MerchantHandler {
	return &MerchantHandler{merchantSvc: merchantSvc, reportingSvc: reportingSvc}
}

// Register handles POST /api/v1/merchants. A merchant registers itself; an
// admin operator names the merchant in the body.
func (h *MerchantHandler) Register(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req dto.RegisterMerchantRequest
	if !bindJSON(c, &req) {
		return
	}

	merchantID := caller.ID
	if caller.Role != domain.RoleMerchant {
		if req.MerchantID == "" {
			response.Error(c, apperror.Validation("merchant_id is required"))
			return
		}
		id, err := parseUUID(req.MerchantID, "merchant_id")
		if err != nil {
			response.Error(c, err)
			return
		}
		merchantID = id
	}

	result, err := h.merchantSvc.Register(c.Request.Context(), ports.RegisterMerchantRequest{
		Caller:     caller,
		MerchantID: merchantID,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, merchantID.String())
	response.Created(c, dto.RegisterMerchantResponse{
		MerchantID:    result.Account.MerchantID.String(),
		Status:        string(result.Account.Status),
		WebhookSecret: result.WebhookSecret,
	})
}

// SetStatus handles PUT /api/v1/ops/merchants/:merchant_id/status.
func (h *MerchantHandler) SetStatus(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	merchantID, err := parseUUID(c.Param("merchant_id"), "merchant_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetMerchantStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.merchantSvc.SetStatus(c.Request.Context(), ports.SetMerchantStatusRequest{
		Caller:     caller,
		MerchantID: merchantID,
		Status:     domain.MerchantStatus(req.Status),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, merchantID.String())
	response.OK(c, dto.NewMerchantResponse(account))
}

// GetMe handles GET /api/v1/merchants/me.
func (h *MerchantHandler) GetMe(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	h.writeStats(c, caller.ID)
}

// Get handles GET /api/v1/ops/merchants/:merchant_id.
func (h *MerchantHandler) Get(c *gin.Context) {
	merchantID, err := parseUUID(c.Param("merchant_id"), "merchant_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStats(c, merchantID)
}

func (h *MerchantHandler) writeStats(c *gin.Context, merchantID uuid.UUID) {
	stats, err := h.reportingSvc.GetMerchantStats(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.MerchantStatsResponse{
		Merchant:        dto.NewMerchantResponse(stats.Account),
		OpenObligations: stats.OpenObligations,
		Completed:       stats.Completed,
		WalletBalance:   stats.WalletBalance,
	}
	if stats.Journal != nil {
		resp.TotalHarvest = stats.Journal.TotalHarvest
		resp.TotalDirect = stats.Journal.TotalDirect
	}
	response.OK(c, resp)
}
