package pool

import (
	"context"
	"errors"
	"math/big"
	"time"
)

const (
	adminID  = "pool-admin"
	admin    = Account("0xadmin")
	custody  = Account("0xcustody")
	alice    = Account("0xalice")
	bob      = Account("0xbob")
	stranger = Account("0xstranger")
)

var errBoom = errors.New("boom")

type fakeResolver struct {
	accounts map[string]Account
	calls    int
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (Account, error) {
	r.calls++
	acc, ok := r.accounts[id]
	if !ok {
		return "", ErrAdminNotFound
	}
	return acc, nil
}

type sendCall struct {
	from, to Account
	amount   *big.Int
}

type fakeVault struct {
	fail  bool
	sends []sendCall
}

func (v *fakeVault) Send(_ context.Context, from, to Account, amount *big.Int) error {
	if v.fail {
		return errBoom
	}
	v.sends = append(v.sends, sendCall{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

// fakeAsset 资产账本，Buy 成功后由销售目标给托管账户发放资产
type fakeAsset struct {
	balances     map[Account]*big.Int
	failTransfer bool
	failBalance  bool
}

func newFakeAsset() *fakeAsset {
	return &fakeAsset{balances: make(map[Account]*big.Int)}
}

func (a *fakeAsset) BalanceOf(_ context.Context, holder Account) (*big.Int, error) {
	if a.failBalance {
		return nil, errBoom
	}
	return new(big.Int).Set(a.balance(holder)), nil
}

func (a *fakeAsset) Transfer(_ context.Context, from, to Account, amount *big.Int) error {
	if a.failTransfer {
		return errBoom
	}
	if a.balance(from).Cmp(amount) < 0 {
		return errors.New("insufficient asset balance")
	}
	a.balances[from] = new(big.Int).Sub(a.balance(from), amount)
	a.balances[to] = new(big.Int).Add(a.balance(to), amount)
	return nil
}

func (a *fakeAsset) mint(to Account, amount *big.Int) {
	a.balances[to] = new(big.Int).Add(a.balance(to), amount)
}

func (a *fakeAsset) balance(holder Account) *big.Int {
	if b, ok := a.balances[holder]; ok {
		return b
	}
	return big.NewInt(0)
}

// fakeSale 支持全部入口的销售目标
type fakeSale struct {
	asset      *fakeAsset
	issueOnBuy *big.Int // Buy 成功时发给托管账户的资产数量
	issueOnVC  *big.Int // 领取时发放
	change     *big.Int
	recovered  *big.Int
	failBuy    bool
	failVendor bool
	failRefund bool
	badEntries map[string]bool

	buys    []Call
	claims  []Call
	refunds []Call
}

func (s *fakeSale) Buy(_ context.Context, call Call) (*big.Int, error) {
	if s.failBuy {
		return nil, errBoom
	}
	s.buys = append(s.buys, call)
	if s.issueOnBuy != nil {
		s.asset.mint(call.From, s.issueOnBuy)
	}
	return s.change, nil
}

func (s *fakeSale) ClaimFromVendor(_ context.Context, call Call) error {
	if s.failVendor {
		return errBoom
	}
	s.claims = append(s.claims, call)
	if s.issueOnVC != nil {
		s.asset.mint(call.From, s.issueOnVC)
	}
	return nil
}

func (s *fakeSale) Refund(_ context.Context, call Call) (*big.Int, error) {
	if s.failRefund {
		return nil, errBoom
	}
	s.refunds = append(s.refunds, call)
	return s.recovered, nil
}

func (s *fakeSale) ValidateEntryPoint(name string) error {
	if s.badEntries[name] {
		return errors.New("unknown entry point")
	}
	return nil
}

// buyOnlySale 只支持购买
type buyOnlySale struct{}

func (buyOnlySale) Buy(context.Context, Call) (*big.Int, error) { return nil, nil }

type fakeBinder struct {
	targets map[string]SaleTarget
	assets  map[string]AssetLedger
}

func (b *fakeBinder) BindSaleTarget(ref string) (SaleTarget, error) {
	t, ok := b.targets[ref]
	if !ok {
		return nil, errors.New("unknown sale target")
	}
	return t, nil
}

func (b *fakeBinder) BindAsset(ref string) (AssetLedger, error) {
	a, ok := b.assets[ref]
	if !ok {
		return nil, errors.New("unknown asset")
	}
	return a, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	pool     *Pool
	resolver *fakeResolver
	vault    *fakeVault
	asset    *fakeAsset
	sale     *fakeSale
	binder   *fakeBinder
	clock    *clock
	deps     Dependencies
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// milliEther n / 1000 ether
func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}

func defaultParams() Params {
	return Params{
		ID:                   "pool-1",
		Name:                 "seed round",
		AdminIdentifier:      adminID,
		Custody:              custody,
		DiscountPercent:      10,
		FeePercentage:        2,
		DueDiligenceDuration: time.Hour,
	}
}

func newHarness(t testingT, mutate ...func(*Params)) *harness {
	asset := newFakeAsset()
	h := &harness{
		resolver: &fakeResolver{accounts: map[string]Account{adminID: admin}},
		vault:    &fakeVault{},
		asset:    asset,
		sale:     &fakeSale{asset: asset},
		clock:    &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.binder = &fakeBinder{
		targets: map[string]SaleTarget{"sale": h.sale, "plain": buyOnlySale{}},
		assets:  map[string]AssetLedger{"token": asset},
	}
	h.deps = Dependencies{Binder: h.binder, Vault: h.vault, Now: h.clock.Now}

	params := defaultParams()
	for _, m := range mutate {
		m(&params)
	}
	p, err := New(context.Background(), h.resolver, params, h.deps)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	h.pool = p
	return h
}

type testingT interface {
	Fatalf(format string, args ...any)
}

func directSpec() Spec {
	return Spec{
		SaleTarget:            "sale",
		IssuedAssetRef:        "token",
		BuyEntryPoint:         "buy()",
		VendorClaimEntryPoint: NotConfigured,
		RefundEntryPoint:      "refund()",
		IsRefundable:          true,
		ContactInfo:           "ops@example.com",
	}
}

func vendorSpec() Spec {
	s := directSpec()
	s.BuyEntryPoint = NotConfigured
	s.VendorClaimEntryPoint = "claimToken()"
	return s
}
