package handler

import (
	"context"

	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
)

// StakeHandler handles a buyer's stake account endpoints.
type StakeHandler struct {
	stakeSvc ports.StakeService
}

// NewStakeHandler creates a new StakeHandler.
func NewStakeHandler(stakeSvc ports.StakeService) *StakeHandler {
	return &StakeHandler{stakeSvc: stakeSvc}
}

// Stake handles POST /api/v1/stake.
func (h *StakeHandler) Stake(c *gin.Context) {
	h.apply(c, h.stakeSvc.Stake)
}

// Unstake handles POST /api/v1/unstake.
func (h *StakeHandler) Unstake(c *gin.Context) {
	h.apply(c, h.stakeSvc.Unstake)
}

func (h *StakeHandler) apply(c *gin.Context, op func(context.Context, ports.StakeRequest) (*domain.StakeAccount, error)) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req dto.StakeRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := op(c.Request.Context(), ports.StakeRequest{Caller: caller, Amount: req.Amount})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetAuditResource(c, account.BuyerID.String())
	response.OK(c, dto.NewStakeAccountResponse(account))
}

// GetAccount handles GET /api/v1/stake.
func (h *StakeHandler) GetAccount(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	account, err := h.stakeSvc.GetAccount(c.Request.Context(), caller.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewStakeAccountResponse(account))
}
