package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/pool"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend 链客户端能力，ethclient.Client 与模拟链都满足
type Backend interface {
	bind.ContractBackend
	ethereum.ChainStateReader
	ethereum.TransactionReader
	BlockNumber(ctx context.Context) (uint64, error)
}

// Manager 单链管理器，持有托管账户私钥
type Manager struct {
	mu           sync.RWMutex
	client       Backend
	closer       func()
	config       config.ChainConfig
	chainId      *big.Int
	custody      map[common.Address]*ecdsa.PrivateKey
	custodyOrder []common.Address
	contracts    map[string]*Contract // 合约映射: "contractName" -> Contract
	pollInterval time.Duration
}

var supportedChainTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// NewManager 连接 RPC 节点并创建管理器
func NewManager(ctx context.Context, cfg config.ChainConfig) (*Manager, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}
	if !isSupportedChainType(cfg.ChainType) {
		return nil, fmt.Errorf("unsupported chain type %s, supported types: %s", cfg.ChainType, strings.Join(supportedChainTypes, ", "))
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	// 测试连接
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	m, err := NewManagerWithBackend(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	m.closer = client.Close
	logger.Info("Successfully created %s client (chain id %d)", cfg.ChainType, cfg.ChainId)
	return m, nil
}

// NewManagerWithBackend 使用现成的客户端创建管理器
func NewManagerWithBackend(client Backend, cfg config.ChainConfig) (*Manager, error) {
	m := &Manager{
		client:       client,
		config:       cfg,
		chainId:      big.NewInt(cfg.ChainId),
		custody:      make(map[common.Address]*ecdsa.PrivateKey),
		contracts:    make(map[string]*Contract),
		pollInterval: time.Second,
	}
	if cfg.ChainId <= 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}

	for i, hexKey := range cfg.CustodyKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse custody key #%d: %w", i, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := m.custody[addr]; dup {
			continue
		}
		m.custody[addr] = key
		m.custodyOrder = append(m.custodyOrder, addr)
	}

	if err := m.initContracts(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize contracts: %w", err)
	}
	return m, nil
}

// initContracts 初始化所有启用的合约
func (m *Manager) initContracts(cfg config.ChainConfig) error {
	for contractName, contractCfg := range cfg.Contracts {
		if !contractCfg.Enabled {
			logger.Info("Skipping disabled contract: %s", contractName)
			continue
		}
		contract, err := NewContract(contractName, contractCfg)
		if err != nil {
			return fmt.Errorf("failed to create contract %s: %w", contractName, err)
		}
		m.contracts[strings.ToLower(contractName)] = contract
		logger.Info("Successfully initialized contract: %s (address: %s)", contractName, contract.GetAddress().Hex())
	}
	return nil
}

func isSupportedChainType(chainType string) bool {
	for _, t := range supportedChainTypes {
		if chainType == t {
			return true
		}
	}
	return false
}

// SetPollInterval 等待回执的轮询间隔
func (m *Manager) SetPollInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollInterval = d
}

// GetClient 获取客户端
func (m *Manager) GetClient() Backend {
	return m.client
}

// GetChainId 获取链ID
func (m *Manager) GetChainId() int64 {
	return m.chainId.Int64()
}

// CustodyAccounts 配置的托管账户，按配置顺序
func (m *Manager) CustodyAccounts() []pool.Account {
	out := make([]pool.Account, 0, len(m.custodyOrder))
	for _, addr := range m.custodyOrder {
		out = append(out, pool.Account(addr.Hex()))
	}
	return out
}

// GetContract 按名称获取合约
func (m *Manager) GetContract(contractName string) (*Contract, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[strings.ToLower(contractName)]
	return c, ok
}

// transactor 托管账户的交易签名器
func (m *Manager) transactor(ctx context.Context, from pool.Account, value *big.Int) (*bind.TransactOpts, error) {
	addr, err := ToAddress(from)
	if err != nil {
		return nil, err
	}
	key, ok := m.custody[addr]
	if !ok {
		return nil, fmt.Errorf("no custody key for %s", addr.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, m.chainId)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = m.config.GasLimit
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	}
	return opts, nil
}

// execute 发送交易并等待成功回执
func (m *Manager) execute(ctx context.Context, send func() (*types.Transaction, error)) (*types.Receipt, error) {
	tx, err := send()
	if err != nil {
		return nil, err
	}
	receipt, err := m.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

// waitReceipt 轮询交易回执
func (m *Manager) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	timeout := time.Duration(m.config.ReceiptTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.mu.RLock()
	interval := m.pollInterval
	m.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := m.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Warn("Failed to get receipt for %s: %v", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Send 从托管账户转出原生币，实现 pool.Vault
func (m *Manager) Send(ctx context.Context, from, to pool.Account, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	toAddr, err := ToAddress(to)
	if err != nil {
		return err
	}
	opts, err := m.transactor(ctx, from, amount)
	if err != nil {
		return err
	}
	bound := bind.NewBoundContract(toAddr, abi.ABI{}, m.client, m.client, m.client)
	receipt, err := m.execute(ctx, func() (*types.Transaction, error) { return bound.Transfer(opts) })
	if err != nil {
		return err
	}
	logger.Info("Sent %s wei from %s to %s (tx %s)", amount, from, toAddr.Hex(), receipt.TxHash.Hex())
	return nil
}

// BalanceOf 原生币余额
func (m *Manager) BalanceOf(ctx context.Context, holder pool.Account) (*big.Int, error) {
	addr, err := ToAddress(holder)
	if err != nil {
		return nil, err
	}
	return m.client.BalanceAt(ctx, addr, nil)
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"chain_type":      m.config.ChainType,
		"chain_id":        m.chainId.Int64(),
		"client_status":   "connected",
		"custody_account": len(m.custodyOrder),
	}
	if block, err := m.client.BlockNumber(ctx); err != nil {
		health["client_status"] = "disconnected"
	} else {
		health["block_number"] = block
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	contracts := make(map[string]interface{}, len(m.contracts))
	for name, c := range m.contracts {
		contracts[name] = c.GetAddress().Hex()
	}
	health["contracts"] = contracts
	return health
}

// Close 关闭管理器
func (m *Manager) Close() {
	if m.closer != nil {
		m.closer()
	}
	logger.Info("Chain manager closed")
}

// ToAddress 账户转地址
func ToAddress(account pool.Account) (common.Address, error) {
	s := strings.TrimSpace(string(account))
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", account)
	}
	return common.HexToAddress(s), nil
}

// ParseAccount 校验并规范化为校验和格式
func ParseAccount(s string) (pool.Account, error) {
	addr, err := ToAddress(pool.Account(s))
	if err != nil {
		return "", err
	}
	return pool.Account(addr.Hex()), nil
}
