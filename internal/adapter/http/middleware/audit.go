package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxAuditResource carries the ID of the resource a write produced.
const CtxAuditResource = "audit_resource"

// SetAuditResource records the resource ID for the audit entry of the
// current request.
func SetAuditResource(c *gin.Context, id string) {
	c.Set(CtxAuditResource, id)
}

// AuditLog creates an audit middleware that logs successful write operations.
// It maps the matched route and method to an audit action.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		entry := &domain.AuditLog{
			ID:           uuid.New(),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResource),
			IPAddress:    c.ClientIP(),
			CreatedAt:    time.Now().UTC(),
		}
		if caller, ok := CallerFrom(c); ok {
			id := caller.ID
			entry.ActorID = &id
			entry.ActorRole = caller.Role
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/stake" && method == http.MethodPost:
		return domain.AuditActionStake, "stake_account"
	case route == "/api/v1/unstake" && method == http.MethodPost:
		return domain.AuditActionUnstake, "stake_account"
	case route == "/api/v1/merchants" && method == http.MethodPost:
		return domain.AuditActionRegisterMerchant, "merchant"
	case route == "/api/v1/ops/merchants/:merchant_id/status" && method == http.MethodPut:
		return domain.AuditActionSetMerchantStatus, "merchant"
	case route == "/api/v1/purchases" && method == http.MethodPost:
		return domain.AuditActionAuthorizePurchase, "obligation"
	case route == "/api/v1/obligations/harvest" && method == http.MethodPost:
		return domain.AuditActionSettleHarvest, "obligation"
	case route == "/api/v1/obligations/claim" && method == http.MethodPost:
		return domain.AuditActionClaimDirect, "obligation"
	case route == "/api/v1/ops/vault/bootstrap" && method == http.MethodPost:
		return domain.AuditActionBootstrap, "vault"
	case route == "/api/v1/ops/wallets/fund" && method == http.MethodPost:
		return domain.AuditActionFund, "wallet"
	}
	return "", ""
}
