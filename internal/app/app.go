// Package app assembles the protocol from configuration: storage, reserve,
// Redis-backed stores, services and the HTTP router. Both the API server and
// the operator CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"yield-bnpl/config"
	httpHandler "yield-bnpl/internal/adapter/http/handler"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/adapter/metrics"
	"yield-bnpl/internal/adapter/reserve/httpreserve"
	"yield-bnpl/internal/adapter/reserve/simulated"
	"yield-bnpl/internal/adapter/storage/memory"
	pgStorage "yield-bnpl/internal/adapter/storage/postgres"
	redisStorage "yield-bnpl/internal/adapter/storage/redis"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/internal/service"
	"yield-bnpl/internal/vault"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repositories is the storage surface every service is built on.
type Repositories struct {
	StakeAccounts ports.StakeAccountRepository
	Merchants     ports.MerchantAccountRepository
	Obligations   ports.ObligationRepository
	Vault         ports.VaultRepository
	Assets        ports.AssetLedger
	Transactions  ports.TransactionRepository
	Idempotency   ports.IdempotencyRepository
	Audits        ports.AuditRepository
	Webhooks      ports.WebhookRepository
	Transactor    ports.DBTransactor
	Health        ports.HealthChecker
}

// MemoryRepositories exposes a memory.Store through the repository ports.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		StakeAccounts: store.StakeAccounts(),
		Merchants:     store.MerchantAccounts(),
		Obligations:   store.Obligations(),
		Vault:         store.Vault(),
		Assets:        store.Assets(),
		Transactions:  store.Transactions(),
		Idempotency:   store.Idempotency(),
		Audits:        store.Audits(),
		Webhooks:      store.Webhooks(),
		Transactor:    store,
		Health:        store,
	}
}

// PostgresRepositories exposes the PostgreSQL repositories through the ports.
func PostgresRepositories(repos *pgStorage.Repositories) Repositories {
	return Repositories{
		StakeAccounts: repos.StakeAccounts,
		Merchants:     repos.Merchants,
		Obligations:   repos.Obligations,
		Vault:         repos.Vault,
		Assets:        repos.Assets,
		Transactions:  repos.Transactions,
		Idempotency:   repos.Idempotency,
		Audits:        repos.Audits,
		Webhooks:      repos.Webhooks,
		Transactor:    repos.Transactor,
		Health:        repos.Health,
	}
}

// Services is the fully wired protocol.
type Services struct {
	Authority  *vault.Authority
	Stake      ports.StakeService
	Merchant   ports.MerchantService
	Purchase   ports.PurchaseService
	Settlement ports.SettlementService
	Vault      ports.VaultService
	Reporting  ports.ReportingService
	Audit      ports.AuditService
	Webhook    ports.WebhookService

	Operators ports.OperatorDirectory
	Enc       ports.EncryptionService
	Sig       ports.SignatureService
	Token     *service.JWTTokenService
}

// Deps are the adapters services are built from.
type Deps struct {
	Repos      Repositories
	Reserve    ports.YieldReserve
	IdempCache ports.IdempotencyCache
	Metrics    ports.ProtocolMetrics
	HTTPClient service.HTTPClient // webhook deliveries
}

// NewServices wires every service over deps.
func NewServices(cfg *config.Config, deps Deps, log zerolog.Logger) (*Services, error) {
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption service: %w", err)
	}
	creds, err := OperatorCredentials(cfg.Operators)
	if err != nil {
		return nil, err
	}
	operators, err := service.NewStaticOperatorDirectory(creds, encSvc)
	if err != nil {
		return nil, fmt.Errorf("operator directory: %w", err)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.Webhook.Timeout}
	}

	r := deps.Repos
	sigSvc := service.NewHMACSignatureService()
	authority := vault.NewAuthority(r.Transactor, r.Vault, r.Assets, deps.Reserve, log)
	webhookSvc := service.NewWebhookService(r.Merchants, r.Webhooks, encSvc, sigSvc, deps.HTTPClient, cfg.Webhook.Retries, log)

	return &Services{
		Authority: authority,
		Stake:     service.NewStakeService(authority, r.StakeAccounts, r.Transactions, deps.Metrics, log),
		Merchant:  service.NewMerchantService(r.Merchants, r.Vault, r.Transactor, encSvc, deps.Metrics, log),
		Purchase: service.NewPurchaseService(
			authority, r.Merchants, r.StakeAccounts, r.Obligations, r.Idempotency, deps.IdempCache, deps.Metrics,
			service.PurchaseConfig{
				DefaultBufferBps:      cfg.Protocol.DefaultBufferBps,
				MaxBufferBps:          cfg.Protocol.MaxBufferBps,
				CollateralHorizonDays: cfg.Protocol.CollateralHorizonDays,
				IdempotencyTTL:        cfg.Protocol.IdempotencyTTL,
			},
			log,
		),
		Settlement: service.NewSettlementService(authority, r.Merchants, r.StakeAccounts, r.Obligations, r.Transactions, webhookSvc, deps.Metrics, log),
		Vault:      service.NewVaultService(authority, r.Vault, r.Assets, r.Transactions, r.Transactor, log),
		Reporting:  service.NewReportingService(r.Obligations, r.Merchants, r.Transactions, r.Assets),
		Audit:      service.NewAuditService(r.Audits, log),
		Webhook:    webhookSvc,
		Operators:  operators,
		Enc:        encSvc,
		Sig:        sigSvc,
		Token:      service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer),
	}, nil
}

// OperatorCredentials converts configured operators.
func OperatorCredentials(ops []config.OperatorConfig) ([]service.OperatorCredential, error) {
	creds := make([]service.OperatorCredential, 0, len(ops))
	for _, op := range ops {
		id, err := uuid.Parse(op.ID)
		if err != nil {
			return nil, fmt.Errorf("operator %q: invalid id: %w", op.AccessKey, err)
		}
		creds = append(creds, service.OperatorCredential{
			ID:        id,
			Role:      domain.Role(op.Role),
			AccessKey: op.AccessKey,
			SecretKey: op.SecretKey,
		})
	}
	return creds, nil
}

// CrankCaller resolves crank.operator_id against the configured operators.
func CrankCaller(cfg *config.Config) (domain.Caller, error) {
	id, err := uuid.Parse(cfg.Crank.OperatorID)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("crank.operator_id: %w", err)
	}
	for _, op := range cfg.Operators {
		if opID, err := uuid.Parse(op.ID); err == nil && opID == id {
			return domain.Caller{ID: id, Role: domain.Role(op.Role)}, nil
		}
	}
	return domain.Caller{}, fmt.Errorf("crank.operator_id %s is not a configured operator", id)
}

// SimulatedReserveConfig parses the decimal rate strings.
func SimulatedReserveConfig(c config.SimulatedReserveConfig) (simulated.Config, error) {
	out := simulated.Config{Available: c.Available, Borrowed: c.Borrowed}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"min_borrow_rate", c.MinBorrowRate, &out.MinBorrowRate},
		{"optimal_utilization", c.OptimalUtilization, &out.OptimalUtilization},
		{"optimal_borrow_rate", c.OptimalBorrowRate, &out.OptimalBorrowRate},
		{"max_borrow_rate", c.MaxBorrowRate, &out.MaxBorrowRate},
		{"take_rate", c.TakeRate, &out.TakeRate},
		{"exchange_rate", c.ExchangeRate, &out.ExchangeRate},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return simulated.Config{}, fmt.Errorf("reserve.simulated.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return out, nil
}

// NewReserve builds the configured yield reserve adapter.
func NewReserve(cfg config.ReserveConfig) (interface {
	ports.YieldReserve
	ports.HealthChecker
}, error) {
	switch cfg.Driver {
	case "simulated":
		simCfg, err := SimulatedReserveConfig(cfg.Simulated)
		if err != nil {
			return nil, err
		}
		return simulated.New(simCfg), nil
	case "http":
		return httpreserve.New(httpreserve.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, nil), nil
	}
	return nil, fmt.Errorf("unknown reserve driver %q", cfg.Driver)
}

// App owns every long-lived resource of a running process.
type App struct {
	Config   *config.Config
	Services *Services
	Repos    Repositories
	Redis    goredis.Cmdable
	Metrics  *metrics.Protocol // nil when disabled
	Checkers []ports.HealthChecker
	Log      zerolog.Logger

	closers []func()
}

// New connects storage, Redis and the reserve, then wires the services.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	switch cfg.Storage.Driver {
	case "memory":
		a.Repos = MemoryRepositories(memory.NewStore())
		log.Warn().Msg("Using in-memory storage, state is lost on exit")
	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Repos = PostgresRepositories(pgStorage.NewRepositories(pool))
	}

	redisCfg := cfg.Redis
	if redisCfg.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		port, _ := strconv.Atoi(mr.Port())
		redisCfg.Host, redisCfg.Port, redisCfg.Password = mr.Host(), port, ""
		log.Warn().Str("addr", mr.Addr()).Msg("Using embedded Redis")
	}
	rdb, err := redisStorage.NewClient(ctx, redisCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.Redis = rdb

	reserve, err := NewReserve(cfg.Reserve)
	if err != nil {
		return nil, err
	}

	var protocolMetrics ports.ProtocolMetrics = metrics.Nop{}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewProtocol(cfg.Metrics.Namespace)
		protocolMetrics = a.Metrics
	}

	a.Services, err = NewServices(cfg, Deps{
		Repos:      a.Repos,
		Reserve:    reserve,
		IdempCache: redisStorage.NewIdempotencyCache(rdb),
		Metrics:    protocolMetrics,
	}, log)
	if err != nil {
		return nil, err
	}
	a.Checkers = []ports.HealthChecker{a.Repos.Health, redisStorage.NewHealthCheck(rdb), reserve}
	return a, nil
}

// Router builds the HTTP engine.
func (a *App) Router() *gin.Engine {
	return httpHandler.SetupRouter(a.RouterDeps())
}

// RouterDeps maps the app onto the router's dependencies.
func (a *App) RouterDeps() httpHandler.RouterDeps {
	cfg := a.Config
	s := a.Services
	signing := middleware.DefaultSigningOptions()
	if cfg.Security.TimestampTolerance > 0 {
		signing.TimestampTolerance = cfg.Security.TimestampTolerance
	}
	if cfg.Security.NonceTTL > 0 {
		signing.NonceTTL = cfg.Security.NonceTTL
	}
	return httpHandler.RouterDeps{
		StakeSvc:       s.Stake,
		MerchantSvc:    s.Merchant,
		PurchaseSvc:    s.Purchase,
		SettlementSvc:  s.Settlement,
		VaultSvc:       s.Vault,
		ReportingSvc:   s.Reporting,
		AuditSvc:       s.Audit,
		Operators:      s.Operators,
		EncSvc:         s.Enc,
		SigSvc:         s.Sig,
		NonceStore:     redisStorage.NewNonceStore(a.Redis),
		TokenSvc:       s.Token,
		Signing:        signing,
		RateLimitStore: redisStorage.NewRateLimitStore(a.Redis),
		RateLimits:     RateLimitRules(cfg.RateLimit),
		HealthCheckers: a.Checkers,
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
		Logger:         a.Log,
	}
}

// RateLimitRules converts configured per-group overrides.
func RateLimitRules(in map[string]config.RateLimitRule) map[string]middleware.RateLimitRule {
	out := make(map[string]middleware.RateLimitRule, len(in))
	for group, rule := range in {
		out[group] = middleware.RateLimitRule{Limit: rule.Limit, Window: rule.Window}
	}
	return out
}

// Crank builds the harvest sweeper acting as the configured crank operator,
// serialized across processes by a Redis lock.
func (a *App) Crank() (*service.Crank, error) {
	caller, err := CrankCaller(a.Config)
	if err != nil {
		return nil, err
	}
	c := a.Config.Crank
	if c.HarvestAmount <= 0 {
		return nil, errors.New("crank.harvest_amount must be positive")
	}
	crank := service.NewCrank(a.Services.Reporting, a.Services.Settlement, caller, service.CrankConfig{
		HarvestAmount:  c.HarvestAmount,
		RatePerSecond:  c.RatePerSecond,
		Burst:          c.Burst,
		MaxConcurrency: c.MaxConcurrency,
		PageSize:       c.PageSize,
	}, a.Log)
	return crank.WithLock(redisStorage.NewSweepLock(a.Redis), c.LockTTL), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
