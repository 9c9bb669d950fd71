package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
)

const simulatedChainId = 1337

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type simChain struct {
	backend *simulated.Backend
	manager *Manager
	custody *ecdsa.PrivateKey
	user    *ecdsa.PrivateKey
}

func (s *simChain) custodyAccount() pool.Account {
	return pool.Account(crypto.PubkeyToAddress(s.custody.PublicKey).Hex())
}

func (s *simChain) userAccount() pool.Account {
	return pool.Account(crypto.PubkeyToAddress(s.user.PublicKey).Hex())
}

func newSimChain(t *testing.T, confirmations uint64) *simChain {
	t.Helper()
	custody, err := crypto.GenerateKey()
	require.NoError(t, err)
	user, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(custody.PublicKey): {Balance: ether(100)},
		crypto.PubkeyToAddress(user.PublicKey):    {Balance: ether(100)},
	})

	// 模拟链只在 Commit 时出块
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
		_ = backend.Close()
	})

	m, err := NewManagerWithBackend(backend.Client(), config.ChainConfig{
		ChainType:      "ethereum",
		ChainId:        simulatedChainId,
		CustodyKeys:    []string{hex.EncodeToString(crypto.FromECDSA(custody))},
		Confirmations:  confirmations,
		ReceiptTimeout: 10,
	})
	require.NoError(t, err)
	m.SetPollInterval(10 * time.Millisecond)

	return &simChain{backend: backend, manager: m, custody: custody, user: user}
}

// sendFromUser 用户直接向地址转账
func (s *simChain) sendFromUser(t *testing.T, to common.Address, value *big.Int) common.Hash {
	t.Helper()
	opts, err := bind.NewKeyedTransactorWithChainID(s.user, big.NewInt(simulatedChainId))
	require.NoError(t, err)
	opts.Value = value
	client := s.manager.GetClient()
	tx, err := bind.NewBoundContract(to, abi.ABI{}, client, client, client).Transfer(opts)
	require.NoError(t, err)
	_, err = s.manager.waitReceipt(context.Background(), tx.Hash())
	require.NoError(t, err)
	return tx.Hash()
}

func TestManagerCustodyAccounts(t *testing.T) {
	s := newSimChain(t, 0)
	require.Equal(t, []pool.Account{s.custodyAccount()}, s.manager.CustodyAccounts())
}

func TestManagerSend(t *testing.T) {
	s := newSimChain(t, 0)
	ctx := context.Background()

	before, err := s.manager.BalanceOf(ctx, s.userAccount())
	require.NoError(t, err)
	require.NoError(t, s.manager.Send(ctx, s.custodyAccount(), s.userAccount(), ether(3)))
	after, err := s.manager.BalanceOf(ctx, s.userAccount())
	require.NoError(t, err)
	require.Equal(t, 0, ether(3).Cmp(new(big.Int).Sub(after, before)))

	err = s.manager.Send(ctx, s.userAccount(), s.custodyAccount(), ether(1))
	require.Error(t, err, "user is not a custody account")
}

func TestSaleContractPlainTransfer(t *testing.T) {
	s := newSimChain(t, 0)
	ctx := context.Background()
	target := common.HexToAddress(saleAddress)

	sale, err := NewBinder(s.manager).BindSaleTarget(saleAddress)
	require.NoError(t, err)

	change, err := sale.Buy(ctx, pool.Call{From: s.custodyAccount(), Value: ether(2)})
	require.NoError(t, err)
	require.Equal(t, 0, change.Sign())

	balance, err := s.manager.client.BalanceAt(ctx, target, nil)
	require.NoError(t, err)
	require.Equal(t, 0, ether(2).Cmp(balance))
}

// sendHook 转发第一笔交易前先执行 hook
type sendHook struct {
	Backend
	once sync.Once
	hook func()
}

func (b *sendHook) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.once.Do(b.hook)
	return b.Backend.SendTransaction(ctx, tx)
}

func TestSaleContractIgnoresEarlierDeposits(t *testing.T) {
	s := newSimChain(t, 0)
	ctx := context.Background()
	custody := common.HexToAddress(string(s.custodyAccount()))

	sale, err := NewBinder(s.manager).BindSaleTarget(saleAddress)
	require.NoError(t, err)

	// 购买交易发出前，有用户入金在更早的区块上链
	inner := s.manager.client
	s.manager.client = &sendHook{Backend: inner, hook: func() {
		opts, err := bind.NewKeyedTransactorWithChainID(s.user, big.NewInt(simulatedChainId))
		require.NoError(t, err)
		opts.Value = ether(5)
		tx, err := bind.NewBoundContract(custody, abi.ABI{}, inner, inner, inner).Transfer(opts)
		require.NoError(t, err)
		_, err = s.manager.waitReceipt(ctx, tx.Hash())
		require.NoError(t, err)
	}}

	change, err := sale.Buy(ctx, pool.Call{From: s.custodyAccount(), Value: ether(2)})
	require.NoError(t, err)
	require.Equal(t, 0, change.Sign(), "deposit must not count as change, got %s", change)

	balance, err := inner.BalanceAt(ctx, custody, nil)
	require.NoError(t, err)
	require.True(t, balance.Cmp(ether(100)) > 0, "deposit landed in custody")
}

func TestSaleContractRejectsBadCustody(t *testing.T) {
	s := newSimChain(t, 0)
	sale, err := NewBinder(s.manager).BindSaleTarget(saleAddress)
	require.NoError(t, err)

	_, err = sale.Buy(context.Background(), pool.Call{From: "not-an-address", Value: ether(1)})
	require.ErrorContains(t, err, "invalid address")
}

func TestVerifyDeposit(t *testing.T) {
	s := newSimChain(t, 0)
	ctx := context.Background()
	custodyAddr := crypto.PubkeyToAddress(s.custody.PublicKey)

	hash := s.sendFromUser(t, custodyAddr, ether(5))
	require.NoError(t, s.manager.VerifyDeposit(ctx, hash.Hex(), s.userAccount(), s.custodyAccount(), ether(5)))

	err := s.manager.VerifyDeposit(ctx, hash.Hex(), s.userAccount(), s.custodyAccount(), ether(4))
	require.ErrorIs(t, err, ErrDepositMismatch)

	err = s.manager.VerifyDeposit(ctx, hash.Hex(), s.custodyAccount(), s.custodyAccount(), ether(5))
	require.ErrorIs(t, err, ErrDepositMismatch)

	err = s.manager.VerifyDeposit(ctx, common.HexToHash("0x01").Hex(), s.userAccount(), s.custodyAccount(), ether(5))
	require.ErrorIs(t, err, ErrDepositNotFound)
}

func TestVerifyDepositNeedsConfirmations(t *testing.T) {
	s := newSimChain(t, 1_000_000)
	custodyAddr := crypto.PubkeyToAddress(s.custody.PublicKey)
	hash := s.sendFromUser(t, custodyAddr, ether(1))

	err := s.manager.VerifyDeposit(context.Background(), hash.Hex(), s.userAccount(), s.custodyAccount(), ether(1))
	require.ErrorIs(t, err, ErrDepositUnconfirmed)
}
