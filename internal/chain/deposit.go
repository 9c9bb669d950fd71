package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrDepositNotFound    = errors.New("deposit transaction not found")
	ErrDepositUnconfirmed = errors.New("deposit transaction not confirmed")
	ErrDepositMismatch    = errors.New("deposit transaction does not match request")
)

// IsTransactionConfirmed 检查交易是否已确认
func (m *Manager) IsTransactionConfirmed(ctx context.Context, txHash common.Hash) (bool, error) {
	receipt, err := m.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, err
	}
	if receipt == nil {
		return false, nil
	}

	latestBlock, err := m.client.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	return latestBlock >= receipt.BlockNumber.Uint64()+m.config.Confirmations, nil
}

// VerifyDeposit 校验入金交易：发送方、收款托管账户、金额、执行成功且确认数足够
func (m *Manager) VerifyDeposit(ctx context.Context, txHash string, from, custody pool.Account, amount *big.Int) error {
	if len(common.FromHex(txHash)) != common.HashLength {
		return fmt.Errorf("%w: invalid tx hash %q", ErrDepositMismatch, txHash)
	}
	hash := common.HexToHash(txHash)

	tx, pending, err := m.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("%w: %s", ErrDepositNotFound, txHash)
		}
		return err
	}
	if pending {
		return fmt.Errorf("%w: %s is pending", ErrDepositUnconfirmed, txHash)
	}

	fromAddr, err := ToAddress(from)
	if err != nil {
		return err
	}
	custodyAddr, err := ToAddress(custody)
	if err != nil {
		return err
	}
	sender, err := types.Sender(types.LatestSignerForChainID(m.chainId), tx)
	if err != nil {
		return fmt.Errorf("%w: recover sender: %v", ErrDepositMismatch, err)
	}
	if sender != fromAddr {
		return fmt.Errorf("%w: sent by %s", ErrDepositMismatch, sender.Hex())
	}
	if tx.To() == nil || *tx.To() != custodyAddr {
		return fmt.Errorf("%w: recipient is not the pool custody account", ErrDepositMismatch)
	}
	if tx.Value().Cmp(amount) != 0 {
		return fmt.Errorf("%w: value %s, expected %s", ErrDepositMismatch, tx.Value(), amount)
	}

	receipt, err := m.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s reverted", ErrDepositMismatch, txHash)
	}
	confirmed, err := m.IsTransactionConfirmed(ctx, hash)
	if err != nil {
		return err
	}
	if !confirmed {
		return fmt.Errorf("%w: %s needs %d confirmations", ErrDepositUnconfirmed, txHash, m.config.Confirmations)
	}
	return nil
}
