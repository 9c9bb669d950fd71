package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/database"
	"github.com/blues/poolparty/internal/pool"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	adminID   = "foundation"
	admin     = pool.Account("0xAdmin")
	alice     = pool.Account("0xAlice")
	bob       = pool.Account("0xBob")
	custodyA  = pool.Account("0xCustodyA")
	custodyB  = pool.Account("0xCustodyB")
	outsider  = pool.Account("0xOutsider")
	assetRef  = "token"
	targetRef = "sale"
)

var errBoom = errors.New("boom")

type fakeResolver map[string]pool.Account

func (r fakeResolver) Resolve(_ context.Context, id string) (pool.Account, error) {
	acc, ok := r[id]
	if !ok {
		return "", pool.ErrAdminNotFound
	}
	return acc, nil
}

type fakeCustody []pool.Account

func (c fakeCustody) CustodyAccounts() []pool.Account { return c }

type fakeVault struct {
	mu    sync.Mutex
	fail  bool
	paid  map[pool.Account]*big.Int
	sends int
}

func (v *fakeVault) Send(_ context.Context, _, to pool.Account, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail {
		return errBoom
	}
	if v.paid == nil {
		v.paid = make(map[pool.Account]*big.Int)
	}
	prev, ok := v.paid[to]
	if !ok {
		prev = big.NewInt(0)
	}
	v.paid[to] = new(big.Int).Add(prev, amount)
	v.sends++
	return nil
}

func (v *fakeVault) paidTo(acc pool.Account) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.paid[acc]; ok {
		return new(big.Int).Set(p)
	}
	return big.NewInt(0)
}

type fakeAsset struct {
	mu       sync.Mutex
	balances map[pool.Account]*big.Int
}

func (a *fakeAsset) BalanceOf(_ context.Context, holder pool.Account) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.balance(holder)), nil
}

func (a *fakeAsset) Transfer(_ context.Context, from, to pool.Account, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance(from).Cmp(amount) < 0 {
		return errors.New("insufficient asset balance")
	}
	a.balances[from] = new(big.Int).Sub(a.balance(from), amount)
	a.balances[to] = new(big.Int).Add(a.balance(to), amount)
	return nil
}

func (a *fakeAsset) mint(to pool.Account, amount *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[to] = new(big.Int).Add(a.balance(to), amount)
}

func (a *fakeAsset) balance(holder pool.Account) *big.Int {
	if b, ok := a.balances[holder]; ok {
		return b
	}
	return big.NewInt(0)
}

type fakeSale struct {
	asset      *fakeAsset
	issueOnBuy *big.Int
	change     *big.Int
	recovered  *big.Int
	failBuy    bool
	bought     *big.Int
}

func (s *fakeSale) Buy(_ context.Context, call pool.Call) (*big.Int, error) {
	if s.failBuy {
		return nil, errBoom
	}
	s.bought = new(big.Int).Set(call.Value)
	if s.issueOnBuy != nil {
		s.asset.mint(call.From, s.issueOnBuy)
	}
	return s.change, nil
}

func (s *fakeSale) ClaimFromVendor(context.Context, pool.Call) error { return nil }

func (s *fakeSale) Refund(context.Context, pool.Call) (*big.Int, error) {
	return s.recovered, nil
}

type fakeBinder struct {
	sale  *fakeSale
	asset *fakeAsset
}

func (b *fakeBinder) BindSaleTarget(ref string) (pool.SaleTarget, error) {
	if ref != targetRef {
		return nil, fmt.Errorf("unknown sale target %q", ref)
	}
	return b.sale, nil
}

func (b *fakeBinder) BindAsset(ref string) (pool.AssetLedger, error) {
	if ref != assetRef {
		return nil, fmt.Errorf("unknown asset %q", ref)
	}
	return b.asset, nil
}

type fakeDeposits struct {
	mu     sync.Mutex
	err    error
	calls  int
	from   pool.Account
	to     pool.Account
	amount *big.Int
}

func (d *fakeDeposits) VerifyDeposit(_ context.Context, _ string, from, custody pool.Account, amount *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.from, d.to, d.amount = from, custody, new(big.Int).Set(amount)
	return d.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db       *gorm.DB
	registry *RegistryLogic
	pools    *PoolLogic
	records  *RecordLogic
	vault    *fakeVault
	asset    *fakeAsset
	sale     *fakeSale
	deposits *fakeDeposits
	clock    *clock
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	return db
}

func newHarness(t *testing.T, withDeposits bool) *harness {
	t.Helper()
	asset := &fakeAsset{balances: make(map[pool.Account]*big.Int)}
	h := &harness{
		db:    newTestDB(t),
		vault: &fakeVault{},
		asset: asset,
		sale:  &fakeSale{asset: asset},
		clock: &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	deps := pool.Dependencies{
		Binder: &fakeBinder{sale: h.sale, asset: asset},
		Vault:  h.vault,
		Now:    h.clock.Now,
	}

	var deposits DepositVerifier
	if withDeposits {
		h.deposits = &fakeDeposits{}
		deposits = h.deposits
	}

	h.registry = NewRegistryLogic(h.db, fakeResolver{adminID: admin}, fakeCustody{custodyA, custodyB}, deps, config.PoolConfig{
		DueDiligenceDuration: time.Hour,
		FeePercentage:        2,
	})
	h.pools = NewPoolLogic(h.db, deps, deposits)
	h.records = NewRecordLogic(h.db)
	return h
}

func (h *harness) createPool(t *testing.T, mutate ...func(*CreatePoolInput)) string {
	t.Helper()
	in := CreatePoolInput{
		Name:            "seed round",
		AdminIdentifier: adminID,
		DiscountPercent: 10,
	}
	for _, m := range mutate {
		m(&in)
	}
	p, err := h.registry.CreatePool(context.Background(), in)
	require.NoError(t, err)
	return p.PoolId
}

// openForReview 出资、配置并进入尽调期
func (h *harness) openForReview(t *testing.T, spec pool.Spec, contributions map[pool.Account]*big.Int) string {
	t.Helper()
	ctx := context.Background()
	id := h.createPool(t)
	for acc, amount := range contributions {
		_, err := h.pools.Contribute(ctx, id, acc, amount, "")
		require.NoError(t, err)
	}
	require.NoError(t, h.pools.Configure(ctx, id, admin, spec))
	_, err := h.pools.CompleteConfiguration(ctx, id, admin)
	require.NoError(t, err)
	return id
}

func directSpec() pool.Spec {
	return pool.Spec{
		SaleTarget:            targetRef,
		IssuedAssetRef:        assetRef,
		BuyEntryPoint:         "buy()",
		VendorClaimEntryPoint: pool.NotConfigured,
		RefundEntryPoint:      "refund()",
		IsRefundable:          true,
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}
