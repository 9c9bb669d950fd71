package chain

import (
	"fmt"
	"strings"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum/common"
)

// Binder 把配置引用解析为链上合约，实现 pool.Binder
// 引用可以是 chain.contracts 中的名称，也可以是合约地址
type Binder struct {
	manager *Manager
}

var _ pool.Binder = (*Binder)(nil)

// NewBinder 创建绑定器
func NewBinder(manager *Manager) *Binder {
	return &Binder{manager: manager}
}

// BindSaleTarget 绑定销售合约
func (b *Binder) BindSaleTarget(ref string) (pool.SaleTarget, error) {
	contract, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &SaleContract{manager: b.manager, contract: contract}, nil
}

// BindAsset 绑定 ERC20 资产
func (b *Binder) BindAsset(ref string) (pool.AssetLedger, error) {
	contract, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	return NewTokenLedger(b.manager, contract.GetAddress()), nil
}

func (b *Binder) resolve(ref string) (*Contract, error) {
	ref = strings.TrimSpace(ref)
	if c, ok := b.manager.GetContract(ref); ok {
		return c, nil
	}
	if common.IsHexAddress(ref) {
		return NewContract(ref, config.ContractConfig{Address: ref, Enabled: true})
	}
	return nil, fmt.Errorf("unknown contract %q", ref)
}
