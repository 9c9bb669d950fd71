package handler

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/gin-gonic/gin"
)

// AccountHeader 调用方账户，由上游网关完成认证后写入
const AccountHeader = "X-Account"

// callerAccount 读取并规范化调用方账户
func callerAccount(c *gin.Context) (pool.Account, error) {
	raw := strings.TrimSpace(c.GetHeader(AccountHeader))
	if raw == "" {
		return "", fmt.Errorf("缺少 %s 请求头", AccountHeader)
	}
	acc, err := chain.ParseAccount(raw)
	if err != nil {
		return "", fmt.Errorf("无效的调用方账户: %w", err)
	}
	return acc, nil
}

// pathAccount 读取路径中的账户参数
func pathAccount(c *gin.Context) (pool.Account, error) {
	acc, err := chain.ParseAccount(c.Param("account"))
	if err != nil {
		return "", fmt.Errorf("无效的账户地址: %w", err)
	}
	return acc, nil
}

// parseAmount 必填金额，必须为非负十进制整数
func parseAmount(field, raw string) (*big.Int, error) {
	v, err := repository.ParseAmount(strings.TrimSpace(raw))
	if err != nil || v.Sign() < 0 {
		return nil, fmt.Errorf("%s 必须是非负的十进制整数", field)
	}
	return v, nil
}

// parseOptionalAmount 空串返回 nil，表示不限制
func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

// pageParams 分页参数
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func addAmounts(a, b string) string {
	x, err := repository.ParseAmount(a)
	if err != nil {
		return ""
	}
	y, err := repository.ParseAmount(b)
	if err != nil {
		return ""
	}
	return new(big.Int).Add(x, y).String()
}

func formatAmount(v *big.Int) string {
	return repository.FormatAmount(v)
}
