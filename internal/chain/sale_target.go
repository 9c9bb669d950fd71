package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

// SaleContract 链上销售合约，实现 pool.SaleTarget 的全部可选能力
type SaleContract struct {
	manager  *Manager
	contract *Contract
}

var (
	_ pool.Buyer               = (*SaleContract)(nil)
	_ pool.VendorClaimer       = (*SaleContract)(nil)
	_ pool.Refunder            = (*SaleContract)(nil)
	_ pool.EntryPointValidator = (*SaleContract)(nil)
)

// ValidateEntryPoint 配置阶段检查入口能否编码
func (s *SaleContract) ValidateEntryPoint(name string) error {
	_, err := s.contract.EntryPointCalldata(name)
	return err
}

// Buy 带值调用购买入口，返回销售方退回的找零
func (s *SaleContract) Buy(ctx context.Context, call pool.Call) (*big.Int, error) {
	return s.invokeMeasured(ctx, call, "buy")
}

// ClaimFromVendor 调用领取入口
func (s *SaleContract) ClaimFromVendor(ctx context.Context, call pool.Call) error {
	_, err := s.invoke(ctx, call)
	if err != nil {
		return fmt.Errorf("vendor claim on %s: %w", s.contract.GetName(), err)
	}
	return nil
}

// Refund 调用退款入口，返回托管账户取回的金额
func (s *SaleContract) Refund(ctx context.Context, call pool.Call) (*big.Int, error) {
	return s.invokeMeasured(ctx, call, "refund")
}

// invokeMeasured 通过托管账户余额变化计算销售方转回的金额
// 余额取本笔交易所在区块与其父区块，扣除本笔交易转出的金额和手续费
// 同一区块内排在本笔交易之前的入金仍会计入
func (s *SaleContract) invokeMeasured(ctx context.Context, call pool.Call, action string) (*big.Int, error) {
	from, err := ToAddress(call.From)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	receipt, err := s.invoke(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", action, s.contract.GetName(), err)
	}

	parent := new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	before, err := s.manager.client.BalanceAt(ctx, from, parent)
	if err != nil {
		return nil, fmt.Errorf("%s: read custody balance at block %s: %w", action, parent, err)
	}
	after, err := s.manager.client.BalanceAt(ctx, from, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("%s: read custody balance at block %s: %w", action, receipt.BlockNumber, err)
	}

	returned := new(big.Int).Sub(after, before)
	if call.Value != nil {
		returned.Add(returned, call.Value)
	}
	returned.Add(returned, gasCost(receipt))
	if returned.Sign() < 0 {
		returned.SetInt64(0)
	}
	return returned, nil
}

func (s *SaleContract) invoke(ctx context.Context, call pool.Call) (*types.Receipt, error) {
	data, err := s.contract.EntryPointCalldata(call.EntryPoint)
	if err != nil {
		return nil, err
	}
	opts, err := s.manager.transactor(ctx, call.From, call.Value)
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(s.contract.GetAddress(), abi.ABI{}, s.manager.client, s.manager.client, s.manager.client)
	receipt, err := s.manager.execute(ctx, func() (*types.Transaction, error) {
		if data == nil {
			return bound.Transfer(opts)
		}
		return bound.RawTransact(opts, data)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Called %q on %s from %s (tx %s)", call.EntryPoint, s.contract.GetName(), call.From, receipt.TxHash.Hex())
	return receipt, nil
}

func gasCost(receipt *types.Receipt) *big.Int {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
}
