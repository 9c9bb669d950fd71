package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/blues/poolparty/internal/config"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract 合约工具类
type Contract struct {
	address common.Address // 合约地址
	abi     *abi.ABI       // 合约ABI，可为空
	name    string         // 合约名称
}

// NewContract 创建合约实例
func NewContract(name string, contractCfg config.ContractConfig) (*Contract, error) {
	if !common.IsHexAddress(contractCfg.Address) {
		return nil, fmt.Errorf("invalid contract address %q", contractCfg.Address)
	}
	contract := &Contract{
		address: common.HexToAddress(contractCfg.Address),
		name:    name,
	}
	if contractCfg.ABIPath == "" {
		return contract, nil
	}

	abiData, err := os.ReadFile(contractCfg.ABIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ABI from %s: %w", contractCfg.ABIPath, err)
	}
	parsed, err := ParseABI(abiData)
	if err != nil {
		return nil, err
	}
	contract.abi = &parsed
	return contract, nil
}

// ParseABI 支持完整编译输出与纯 ABI 数组
func ParseABI(data []byte) (abi.ABI, error) {
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsed, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsed, nil
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// 无参函数签名，例如 buy()
var signaturePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\(\)$`)

// EntryPointCalldata 把入口名称编码为调用数据
// 有 ABI 时按方法名或签名查找；没有 ABI 时只接受无参签名
// 空入口返回 nil，表示直接转账
func (c *Contract) EntryPointCalldata(entryPoint string) ([]byte, error) {
	if entryPoint == "" {
		return nil, nil
	}
	if c.abi != nil {
		method, ok := c.findMethod(entryPoint)
		if !ok {
			return nil, fmt.Errorf("method %q not found in %s ABI", entryPoint, c.name)
		}
		if len(method.Inputs) != 0 {
			return nil, fmt.Errorf("method %q takes arguments", method.Sig)
		}
		return method.ID, nil
	}
	if !signaturePattern.MatchString(entryPoint) {
		return nil, fmt.Errorf("entry point %q must look like name()", entryPoint)
	}
	return crypto.Keccak256([]byte(entryPoint))[:4], nil
}

func (c *Contract) findMethod(entryPoint string) (abi.Method, bool) {
	if m, ok := c.abi.Methods[entryPoint]; ok {
		return m, true
	}
	for _, m := range c.abi.Methods {
		if m.Sig == entryPoint {
			return m, true
		}
	}
	return abi.Method{}, false
}
