package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC20 最小 ABI
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// TokenLedger ERC20 资产账本，实现 pool.AssetLedger
type TokenLedger struct {
	manager *Manager
	address common.Address
	bound   *bind.BoundContract
}

var _ pool.AssetLedger = (*TokenLedger)(nil)

// NewTokenLedger 绑定 ERC20 合约
func NewTokenLedger(manager *Manager, address common.Address) *TokenLedger {
	return &TokenLedger{
		manager: manager,
		address: address,
		bound:   bind.NewBoundContract(address, parsedERC20, manager.client, manager.client, manager.client),
	}
}

// Address 合约地址
func (t *TokenLedger) Address() common.Address {
	return t.address
}

// BalanceOf 查询持有量
func (t *TokenLedger) BalanceOf(ctx context.Context, holder pool.Account) (*big.Int, error) {
	addr, err := ToAddress(holder)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	if err := t.bound.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr); err != nil {
		return nil, fmt.Errorf("balanceOf %s on %s: %w", addr.Hex(), t.address.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", out[0])
	}
	return balance, nil
}

// Transfer 从托管账户转出资产
func (t *TokenLedger) Transfer(ctx context.Context, from, to pool.Account, amount *big.Int) error {
	toAddr, err := ToAddress(to)
	if err != nil {
		return err
	}
	opts, err := t.manager.transactor(ctx, from, nil)
	if err != nil {
		return err
	}
	_, err = t.manager.execute(ctx, func() (*types.Transaction, error) {
		return t.bound.Transact(opts, "transfer", toAddr, amount)
	})
	if err != nil {
		return fmt.Errorf("transfer %s to %s on %s: %w", amount, toAddr.Hex(), t.address.Hex(), err)
	}
	return nil
}

// TransferCalldata 便于核对的 transfer 调用数据
func TransferCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	return parsedERC20.Pack("transfer", to, amount)
}
