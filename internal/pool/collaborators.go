package pool

import (
	"context"
	"math/big"
	"time"
)

// AdminResolver 将可读标识解析为管理员账户，仅在创建资金池时调用一次
type AdminResolver interface {
	Resolve(ctx context.Context, identifier string) (Account, error)
}

// Call 转发给外部销售合约的调用
type Call struct {
	From       Account  // 资金池托管账户
	EntryPoint string   // 入口名称，由销售方解释；为空表示直接转账
	Value      *big.Int // 随调用转出的金额，可为 nil
}

// Buyer 购买入口，所有销售目标都必须支持
// 返回值为销售方退回的找零，可为 nil
type Buyer interface {
	Buy(ctx context.Context, call Call) (*big.Int, error)
}

// VendorClaimer 需要单独向销售方领取资产的入口
type VendorClaimer interface {
	ClaimFromVendor(ctx context.Context, call Call) error
}

// Refunder 退款入口，返回取回的金额
type Refunder interface {
	Refund(ctx context.Context, call Call) (*big.Int, error)
}

// EntryPointValidator 可选：销售目标在配置阶段校验入口名称
type EntryPointValidator interface {
	ValidateEntryPoint(name string) error
}

// SaleTarget 销售目标能力集合
type SaleTarget interface {
	Buyer
}

// AssetLedger 发行资产账本
type AssetLedger interface {
	BalanceOf(ctx context.Context, holder Account) (*big.Int, error)
	Transfer(ctx context.Context, from, to Account, amount *big.Int) error
}

// Vault 资金池持有货币的转出
type Vault interface {
	Send(ctx context.Context, from, to Account, amount *big.Int) error
}

// Binder 把配置里的引用绑定为可调用的能力
type Binder interface {
	BindSaleTarget(ref string) (SaleTarget, error)
	BindAsset(ref string) (AssetLedger, error)
}

// Dependencies 资金池的外部依赖
type Dependencies struct {
	Binder Binder
	Vault  Vault
	Now    func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
