package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/database"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/pool"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func account(t *testing.T, hex string) pool.Account {
	t.Helper()
	acc, err := chain.ParseAccount(hex)
	require.NoError(t, err)
	return acc
}

type memVault struct {
	mu   sync.Mutex
	sent map[pool.Account]*big.Int
}

func (v *memVault) Send(_ context.Context, _, to pool.Account, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.sent[to]
	if !ok {
		prev = big.NewInt(0)
	}
	v.sent[to] = new(big.Int).Add(prev, amount)
	return nil
}

type memAsset struct {
	mu       sync.Mutex
	balances map[pool.Account]*big.Int
}

func (a *memAsset) get(acc pool.Account) *big.Int {
	if b, ok := a.balances[acc]; ok {
		return b
	}
	return big.NewInt(0)
}

func (a *memAsset) BalanceOf(_ context.Context, holder pool.Account) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.get(holder)), nil
}

func (a *memAsset) Transfer(_ context.Context, from, to pool.Account, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.get(from).Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	a.balances[from] = new(big.Int).Sub(a.get(from), amount)
	a.balances[to] = new(big.Int).Add(a.get(to), amount)
	return nil
}

// memSale 购买后给托管账户发放 1000 倍数量的资产
type memSale struct{ asset *memAsset }

func (s *memSale) Buy(_ context.Context, call pool.Call) (*big.Int, error) {
	s.asset.mu.Lock()
	defer s.asset.mu.Unlock()
	s.asset.balances[call.From] = new(big.Int).Mul(call.Value, big.NewInt(1000))
	return nil, nil
}

type memBinder struct {
	sale  *memSale
	asset *memAsset
}

func (b *memBinder) BindSaleTarget(ref string) (pool.SaleTarget, error) {
	if ref != "presale" {
		return nil, fmt.Errorf("unknown sale target %q", ref)
	}
	return b.sale, nil
}

func (b *memBinder) BindAsset(ref string) (pool.AssetLedger, error) {
	if ref != "token" {
		return nil, fmt.Errorf("unknown asset %q", ref)
	}
	return b.asset, nil
}

type resolverFunc func(ctx context.Context, id string) (pool.Account, error)

func (f resolverFunc) Resolve(ctx context.Context, id string) (pool.Account, error) { return f(ctx, id) }

type custodyList []pool.Account

func (c custodyList) CustodyAccounts() []pool.Account { return c }

type env struct {
	engine *gin.Engine
	admin  pool.Account
	alice  pool.Account
	asset  *memAsset
	now    time.Time
	mu     sync.Mutex
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)

	e := &env{
		admin: account(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"),
		alice: account(t, "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"),
		asset: &memAsset{balances: make(map[pool.Account]*big.Int)},
		now:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	deps := pool.Dependencies{
		Binder: &memBinder{sale: &memSale{asset: e.asset}, asset: e.asset},
		Vault:  &memVault{sent: make(map[pool.Account]*big.Int)},
		Now:    e.clock,
	}
	resolver := resolverFunc(func(_ context.Context, id string) (pool.Account, error) {
		if id != "foundation" {
			return "", pool.ErrAdminNotFound
		}
		return e.admin, nil
	})
	custody := custodyList{account(t, "0x15d34aaf54267db7d7c367839aaf71a00a2c6a65")}

	e.engine = Setup(Services{
		Registry: logic.NewRegistryLogic(db, resolver, custody, deps, config.PoolConfig{DueDiligenceDuration: time.Hour}),
		Pools:    logic.NewPoolLogic(db, deps, nil),
		Records:  logic.NewRecordLogic(db),
	}, config.ServerConfig{Mode: gin.TestMode, AllowOrigins: []string{"*"}})
	return e
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path string, caller pool.Account, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Account", strings.ToLower(string(caller)))
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "poolparty_api_requests_total")
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)

	code, res := e.do(t, http.MethodPost, "/api/v1/pools", "", map[string]interface{}{
		"name":            "seed",
		"adminIdentifier": "foundation",
		"discountPercent": 10,
		"feePercentage":   0,
	})
	require.Equal(t, http.StatusCreated, code, res.Message)
	var created struct {
		PoolID string `json:"poolId"`
		Admin  string `json:"admin"`
		Status string `json:"status"`
	}
	decode(t, res.Data, &created)
	require.Equal(t, string(e.admin), created.Admin)
	require.Equal(t, "open", created.Status)
	base := "/api/v1/pools/" + created.PoolID

	// 缺少调用方
	code, _ = e.do(t, http.MethodPost, base+"/contribute", "", map[string]string{"amount": "900"})
	require.Equal(t, http.StatusUnauthorized, code)

	code, res = e.do(t, http.MethodPost, base+"/contribute", e.alice, map[string]string{"amount": "900"})
	require.Equal(t, http.StatusOK, code, res.Message)

	code, _ = e.do(t, http.MethodPost, base+"/configure", e.alice, map[string]string{"saleTarget": "presale", "issuedAssetRef": "token"})
	require.Equal(t, http.StatusForbidden, code)

	code, res = e.do(t, http.MethodPost, base+"/configure", e.admin, map[string]interface{}{
		"saleTarget":            "presale",
		"issuedAssetRef":        "token",
		"buyEntryPoint":         "N/A",
		"vendorClaimEntryPoint": "N/A",
		"refundEntryPoint":      "N/A",
	})
	require.Equal(t, http.StatusOK, code, res.Message)

	code, _ = e.do(t, http.MethodPost, base+"/complete-configuration", e.admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, base+"/start-review", e.admin, nil)
	require.Equal(t, http.StatusConflict, code)

	e.advance(time.Hour)
	code, res = e.do(t, http.MethodPost, base+"/start-review", e.admin, nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	var locked struct {
		RequiredReleaseValue string `json:"requiredReleaseValue"`
	}
	decode(t, res.Data, &locked)
	// 补贴 900 * 10 / 90
	require.Equal(t, "100", locked.RequiredReleaseValue)

	code, _ = e.do(t, http.MethodPost, base+"/release", e.admin, map[string]string{"supplied": "99"})
	require.Equal(t, http.StatusBadRequest, code)

	code, res = e.do(t, http.MethodPost, base+"/release", e.admin, map[string]string{"supplied": "100"})
	require.Equal(t, http.StatusOK, code, res.Message)
	var released struct {
		Forwarded string `json:"forwarded"`
		Status    string `json:"status"`
	}
	decode(t, res.Data, &released)
	require.Equal(t, "1000", released.Forwarded)
	require.Equal(t, "claim", released.Status)

	code, res = e.do(t, http.MethodGet, base+"/participants/"+string(e.alice)+"/due", "", nil)
	require.Equal(t, http.StatusOK, code)
	var due struct {
		TokensDue string `json:"tokensDue"`
	}
	decode(t, res.Data, &due)
	require.Equal(t, "1000000", due.TokensDue)

	code, res = e.do(t, http.MethodPost, base+"/claim", e.alice, nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	require.Equal(t, big.NewInt(1000000), e.asset.get(e.alice))

	code, _ = e.do(t, http.MethodPost, base+"/claim", e.alice, nil)
	require.Equal(t, http.StatusConflict, code)

	code, res = e.do(t, http.MethodGet, base+"/events?page=1&page_size=50", "", nil)
	require.Equal(t, http.StatusOK, code)
	var events struct {
		Records []struct {
			EventType string `json:"eventType"`
		} `json:"records"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, res.Data, &events)
	// create contribute configure complete start_review release sync_asset claim
	require.Equal(t, int64(8), events.Pagination.Total)
	require.Equal(t, "claim", events.Records[0].EventType)
}

func TestNotFoundAndValidation(t *testing.T) {
	e := newEnv(t)

	code, res := e.do(t, http.MethodGet, "/api/v1/pools/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, res.Success)

	code, _ = e.do(t, http.MethodPost, "/api/v1/pools", "", map[string]string{"name": "x"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/pools", "", map[string]interface{}{
		"name":            "x",
		"adminIdentifier": "nobody",
	})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/pools?status=bogus", "", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/pools/abc/participants/not-an-address", "", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pools", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Account")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
