package handler

import (
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/adapter/metrics"
	redisStore "yield-bnpl/internal/adapter/storage/redis"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	StakeSvc      ports.StakeService
	MerchantSvc   ports.MerchantService
	PurchaseSvc   ports.PurchaseService
	SettlementSvc ports.SettlementService
	VaultSvc      ports.VaultService
	ReportingSvc  ports.ReportingService
	AuditSvc      ports.AuditService // nil = audit logging disabled

	Operators  ports.OperatorDirectory
	EncSvc     ports.EncryptionService
	SigSvc     ports.SignatureService
	NonceStore ports.NonceStore
	TokenSvc   ports.TokenService
	Signing    middleware.SigningOptions

	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimits     map[string]middleware.RateLimitRule

	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Protocol // nil = /metrics disabled
	MetricsPath    string
	MaxBodyBytes   int64
	Mode           string // gin mode; release when empty
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode == "" {
		deps.Mode = gin.ReleaseMode
	}
	gin.SetMode(deps.Mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.MergeRateLimitRules(deps.RateLimits)
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	bearer := func(roles ...domain.Role) gin.HandlerFunc {
		return middleware.JWTAuth(deps.TokenSvc, deps.Logger, roles...)
	}
	operator := func(roles ...domain.Role) gin.HandlerFunc {
		return middleware.OperatorAuth(deps.Operators, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Signing, deps.Logger, roles...)
	}

	stakeHandler := NewStakeHandler(deps.StakeSvc)
	merchantHandler := NewMerchantHandler(deps.MerchantSvc, deps.ReportingSvc)
	purchaseHandler := NewPurchaseHandler(deps.PurchaseSvc)
	obligationHandler := NewObligationHandler(deps.SettlementSvc, deps.ReportingSvc)
	vaultHandler := NewVaultHandler(deps.VaultSvc)
	reportingHandler := NewReportingHandler(deps.ReportingSvc)

	v1 := r.Group("/api/v1")

	// --- Buyer routes (JWT) ---
	buyer := bearer(domain.RoleBuyer)
	v1.POST("/stake", buyer, rl(middleware.GroupStake), stakeHandler.Stake)
	v1.POST("/unstake", buyer, rl(middleware.GroupStake), stakeHandler.Unstake)
	v1.GET("/stake", buyer, rl(middleware.GroupReporting), stakeHandler.GetAccount)

	// --- Merchant routes (JWT, or HMAC admin for registration) ---
	v1.POST("/merchants",
		middleware.EitherAuth(bearer(domain.RoleMerchant), operator(domain.RoleAdmin)),
		rl(middleware.GroupMerchants),
		merchantHandler.Register,
	)
	v1.GET("/merchants/me", bearer(domain.RoleMerchant), rl(middleware.GroupReporting), merchantHandler.GetMe)
	v1.POST("/obligations/claim", bearer(domain.RoleMerchant), rl(middleware.GroupClaim), obligationHandler.Claim)

	// --- Operator routes (HMAC) ---
	v1.POST("/purchases", rl(middleware.GroupPurchases), operator(domain.RoleAdmin), purchaseHandler.Authorize)
	v1.POST("/obligations/harvest", rl(middleware.GroupSettlement), operator(domain.RoleAdmin, domain.RoleCrank), obligationHandler.Harvest)

	// --- Party queries (JWT buyer or merchant) ---
	party := bearer(domain.RoleBuyer, domain.RoleMerchant)
	queries := v1.Group("", party, rl(middleware.GroupReporting))
	{
		queries.GET("/obligations", obligationHandler.List)
		queries.GET("/obligations/:buyer_id/:merchant_id/:sequence", obligationHandler.Get)
		queries.GET("/wallet/balance", reportingHandler.GetBalance)
		queries.GET("/transactions", reportingHandler.ListTransactions)
	}

	// --- Protocol administration (HMAC) ---
	ops := v1.Group("/ops", rl(middleware.GroupOps))
	{
		admin := operator(domain.RoleAdmin)
		reader := operator(domain.RoleAdmin, domain.RoleCrank)

		ops.POST("/vault/bootstrap", admin, vaultHandler.Bootstrap)
		ops.GET("/vault", reader, vaultHandler.Get)
		ops.POST("/wallets/fund", admin, vaultHandler.Fund)
		ops.GET("/wallets/balance", reader, reportingHandler.GetBalance)
		ops.GET("/transactions", reader, reportingHandler.ListTransactions)
		ops.PUT("/merchants/:merchant_id/status", admin, merchantHandler.SetStatus)
		ops.GET("/merchants/:merchant_id", reader, merchantHandler.Get)
		ops.GET("/obligations", reader, obligationHandler.List)
		ops.GET("/obligations/:buyer_id/:merchant_id/:sequence", reader, obligationHandler.Get)
	}

	return r
}
