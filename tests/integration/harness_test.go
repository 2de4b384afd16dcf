package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"yield-bnpl/config"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/adapter/storage/memory"
	"yield-bnpl/internal/app"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testApp runs the full stack in-process: memory ledger, embedded Redis,
// simulated reserve, real JWT and HMAC authentication over an httptest server.
type testApp struct {
	t      *testing.T
	app    *app.App
	server *httptest.Server
	sigSvc *service.HMACSignatureService
}

type operator struct {
	id        uuid.UUID
	accessKey string
	secretKey string
}

var (
	adminOp = operator{uuid.MustParse("a0000000-0000-0000-0000-000000000001"), "ak_admin", "sk_admin_secret"}
	crankOp = operator{uuid.MustParse("c0000000-0000-0000-0000-000000000001"), "ak_crank", "sk_crank_secret"}
)

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	Page      *struct {
		Total   int64 `json:"total"`
		HasMore bool  `json:"has_more"`
	} `json:"page"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Mode = "test"
	cfg.Storage.Driver = "memory"
	cfg.Redis.Embedded = true
	cfg.Reserve.Driver = "simulated"
	cfg.JWT.Secret = "integration-jwt-secret"
	cfg.AES.Key = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	cfg.Metrics.Enabled = true
	cfg.Webhook.Retries = []time.Duration{}
	cfg.Crank.OperatorID = crankOp.id.String()
	cfg.Crank.HarvestAmount = 1000
	cfg.Operators = []config.OperatorConfig{
		{ID: adminOp.id.String(), Role: "admin", AccessKey: adminOp.accessKey, SecretKey: adminOp.secretKey},
		{ID: crankOp.id.String(), Role: "crank", AccessKey: crankOp.accessKey, SecretKey: crankOp.secretKey},
	}
	generous := config.RateLimitRule{Limit: 100_000, Window: time.Minute}
	cfg.RateLimit = map[string]config.RateLimitRule{
		middleware.GroupStake: generous, middleware.GroupMerchants: generous, middleware.GroupPurchases: generous,
		middleware.GroupSettlement: generous, middleware.GroupOps: generous, middleware.GroupReporting: generous,
		middleware.GroupClaim: generous,
	}

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	server := httptest.NewServer(a.Router())
	t.Cleanup(func() {
		server.Close()
		a.Close()
	})

	return &testApp{t: t, app: a, server: server, sigSvc: service.NewHMACSignatureService()}
}

func (ta *testApp) store() *memory.Store {
	return ta.app.Repos.Health.(*memory.Store)
}

func (ta *testApp) token(id uuid.UUID, role domain.Role) string {
	tok, _, err := ta.app.Services.Token.Generate(id, role)
	require.NoError(ta.t, err)
	return tok
}

// asOperator signs a request the way an operator client does.
func (ta *testApp) asOperator(op operator) func(*http.Request, []byte) {
	return func(req *http.Request, body []byte) {
		nonceBytes := make([]byte, 16)
		_, _ = rand.Read(nonceBytes)
		nonce := hex.EncodeToString(nonceBytes)
		ts := time.Now().Unix()
		canonical := ta.sigSvc.BuildCanonicalString(req.Method, req.URL.Path, ts, nonce, string(body))
		req.Header.Set(middleware.HeaderAccessKey, op.accessKey)
		req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(middleware.HeaderNonce, nonce)
		req.Header.Set(middleware.HeaderSignature, ta.sigSvc.Sign(op.secretKey, canonical))
	}
}

func (ta *testApp) asParty(id uuid.UUID, role domain.Role) func(*http.Request, []byte) {
	tok := ta.token(id, role)
	return func(req *http.Request, _ []byte) {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// call sends a request and decodes the envelope. It is safe to use from
// multiple goroutines; failures are returned, not asserted.
func (ta *testApp) call(method, path string, payload any, auth func(*http.Request, []byte)) (int, envelope, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return 0, envelope{}, err
		}
	}
	req, err := http.NewRequest(method, ta.server.URL+path, bytes.NewReader(body))
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req, body)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, envelope{}, err
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return resp.StatusCode, envelope{}, err
		}
	}
	return resp.StatusCode, env, nil
}

// must calls and requires the expected status, decoding data into out.
func (ta *testApp) must(wantStatus int, method, path string, payload any, auth func(*http.Request, []byte), out any) envelope {
	ta.t.Helper()
	status, env, err := ta.call(method, path, payload, auth)
	require.NoError(ta.t, err)
	require.Equal(ta.t, wantStatus, status, "%s %s: %s %s", method, path, env.ErrorCode, env.Message)
	if out != nil {
		require.NoError(ta.t, json.Unmarshal(env.Data, out))
	}
	return env
}

// --- protocol fixtures ---

type stakeAccount struct {
	BuyerID           string `json:"buyer_id"`
	StakedPrincipal   int64  `json:"staked_principal"`
	UnlockableBalance int64  `json:"unlockable_balance"`
	LockedCollateral  int64  `json:"locked_collateral"`
}

type obligation struct {
	Key              string `json:"key"`
	Sequence         int64  `json:"sequence"`
	AmountDue        int64  `json:"amount_due"`
	LockedCollateral int64  `json:"locked_collateral"`
	AmountFulfilled  int64  `json:"amount_fulfilled"`
	Remaining        int64  `json:"remaining"`
	Status           string `json:"status"`
	APYBps           int64  `json:"apy_bps"`
	BufferBps        int64  `json:"buffer_bps"`
}

type settlement struct {
	Obligation obligation `json:"obligation"`
	Mode       string     `json:"mode"`
	Paid       int64      `json:"paid"`
	Redeemed   int64      `json:"redeemed"`
	Completed  bool       `json:"completed"`
}

type vaultState struct {
	AdminID               string `json:"admin_id"`
	TotalStaked           int64  `json:"total_staked"`
	TotalRewardsHarvested int64  `json:"total_rewards_harvested"`
	OpenObligationCount   int64  `json:"open_obligation_count"`
}

func (ta *testApp) bootstrap() {
	ta.t.Helper()
	ta.must(http.StatusCreated, http.MethodPost, "/api/v1/ops/vault/bootstrap", nil, ta.asOperator(adminOp), nil)
}

func (ta *testApp) fund(account uuid.UUID, amount int64) {
	ta.t.Helper()
	ta.must(http.StatusOK, http.MethodPost, "/api/v1/ops/wallets/fund",
		map[string]any{"account_id": account.String(), "amount": amount}, ta.asOperator(adminOp), nil)
}

// newBuyer funds and stakes a fresh buyer.
func (ta *testApp) newBuyer(stake int64) uuid.UUID {
	ta.t.Helper()
	buyer := uuid.New()
	ta.fund(buyer, stake)
	ta.must(http.StatusOK, http.MethodPost, "/api/v1/stake", map[string]any{"amount": stake}, ta.asParty(buyer, domain.RoleBuyer), nil)
	return buyer
}

// newMerchant self-registers a merchant, optionally with a webhook.
func (ta *testApp) newMerchant(webhookURL string) (uuid.UUID, string) {
	ta.t.Helper()
	merchant := uuid.New()
	payload := map[string]any{}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}
	var resp struct {
		MerchantID    string `json:"merchant_id"`
		Status        string `json:"status"`
		WebhookSecret string `json:"webhook_secret"`
	}
	ta.must(http.StatusCreated, http.MethodPost, "/api/v1/merchants", payload, ta.asParty(merchant, domain.RoleMerchant), &resp)
	require.Equal(ta.t, merchant.String(), resp.MerchantID)
	return merchant, resp.WebhookSecret
}

func (ta *testApp) purchase(buyer, merchant uuid.UUID, ref string, amount int64) obligation {
	ta.t.Helper()
	var ob obligation
	ta.must(http.StatusCreated, http.MethodPost, "/api/v1/purchases", map[string]any{
		"buyer_id":        buyer.String(),
		"merchant_id":     merchant.String(),
		"reference_id":    ref,
		"purchase_amount": amount,
	}, ta.asOperator(adminOp), &ob)
	return ob
}

func settlementBody(buyer, merchant uuid.UUID, seq, amount int64) map[string]any {
	return map[string]any{
		"buyer_id":    buyer.String(),
		"merchant_id": merchant.String(),
		"sequence":    seq,
		"amount":      amount,
	}
}

func (ta *testApp) stakeOf(buyer uuid.UUID) stakeAccount {
	ta.t.Helper()
	var acct stakeAccount
	ta.must(http.StatusOK, http.MethodGet, "/api/v1/stake", nil, ta.asParty(buyer, domain.RoleBuyer), &acct)
	return acct
}

func (ta *testApp) vault() vaultState {
	ta.t.Helper()
	var v vaultState
	ta.must(http.StatusOK, http.MethodGet, "/api/v1/ops/vault", nil, ta.asOperator(crankOp), &v)
	return v
}

func jsonData(env envelope, out any) error {
	return json.Unmarshal(env.Data, out)
}
