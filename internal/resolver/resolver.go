package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/pool"
)

// StaticResolver 从配置的 admins 表解析管理员，标识不区分大小写
type StaticResolver struct {
	accounts map[string]pool.Account
}

var _ pool.AdminResolver = (*StaticResolver)(nil)

// NewStaticResolver 校验并规范化所有地址
func NewStaticResolver(admins map[string]string) (*StaticResolver, error) {
	r := &StaticResolver{accounts: make(map[string]pool.Account, len(admins))}
	for id, raw := range admins {
		acc, err := chain.ParseAccount(raw)
		if err != nil {
			return nil, fmt.Errorf("admin %s: %w", id, err)
		}
		r.accounts[normalize(id)] = acc
	}
	return r, nil
}

// Resolve 实现 pool.AdminResolver
func (r *StaticResolver) Resolve(_ context.Context, identifier string) (pool.Account, error) {
	acc, ok := r.accounts[normalize(identifier)]
	if !ok {
		return "", fmt.Errorf("%w: %q", pool.ErrAdminNotFound, identifier)
	}
	return acc, nil
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
