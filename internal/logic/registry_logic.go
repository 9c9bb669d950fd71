package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNoCustodyAvailable = errors.New("没有空闲的托管账户")
	ErrCustodyUnavailable = errors.New("托管账户未配置或已被占用")
)

// CustodyProvider 可分配给资金池的托管账户
type CustodyProvider interface {
	CustodyAccounts() []pool.Account
}

// CreatePoolInput 创建资金池的参数，金额为 nil 表示不限制
type CreatePoolInput struct {
	Name                 string
	Description          string
	MetadataHash         string
	AdminIdentifier      string
	Custody              pool.Account // 为空时自动分配
	WaterMark            *big.Int
	GroupTokenPrice      *big.Int
	PublicTokenPrice     *big.Int
	MinContribution      *big.Int
	MaxContribution      *big.Int
	MaxAllocation        *big.Int
	DiscountPercent      uint64
	FeePercentage        *uint64        // 为 nil 时使用配置默认值
	DueDiligenceDuration *time.Duration // 为 nil 时使用配置默认值
}

// RegistryLogic 资金池的创建与查询
type RegistryLogic struct {
	mu       sync.Mutex // 串行分配托管账户
	db       *gorm.DB
	pools    *repository.PoolRepository
	records  *repository.RecordRepository
	resolver pool.AdminResolver
	custody  CustodyProvider
	deps     pool.Dependencies
	defaults config.PoolConfig
}

// NewRegistryLogic 创建资金池注册逻辑
func NewRegistryLogic(db *gorm.DB, resolver pool.AdminResolver, custody CustodyProvider, deps pool.Dependencies, defaults config.PoolConfig) *RegistryLogic {
	return &RegistryLogic{
		db:       db,
		pools:    repository.NewPoolRepository(db),
		records:  repository.NewRecordRepository(db),
		resolver: resolver,
		custody:  custody,
		deps:     deps,
		defaults: defaults,
	}
}

// CreatePool 创建资金池，每个池独占一个托管账户
func (r *RegistryLogic) CreatePool(ctx context.Context, in CreatePoolInput) (*model.PoolModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	custody, err := r.assignCustody(in.Custody)
	if err != nil {
		return nil, err
	}

	params := pool.Params{
		ID:                   uuid.NewString(),
		Name:                 in.Name,
		Description:          in.Description,
		MetadataHash:         in.MetadataHash,
		AdminIdentifier:      in.AdminIdentifier,
		Custody:              custody,
		WaterMark:            in.WaterMark,
		GroupTokenPrice:      in.GroupTokenPrice,
		PublicTokenPrice:     in.PublicTokenPrice,
		MinContribution:      in.MinContribution,
		MaxContribution:      in.MaxContribution,
		MaxAllocation:        in.MaxAllocation,
		DiscountPercent:      in.DiscountPercent,
		FeePercentage:        r.defaults.FeePercentage,
		DueDiligenceDuration: r.defaults.DueDiligenceDuration,
	}
	if in.FeePercentage != nil {
		params.FeePercentage = *in.FeePercentage
	}
	if in.DueDiligenceDuration != nil {
		params.DueDiligenceDuration = *in.DueDiligenceDuration
	}

	p, err := pool.New(ctx, r.resolver, params, r.deps)
	if err != nil {
		return nil, err
	}
	state := p.State()

	tx := r.db.WithContext(ctx).Begin()
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	rows, err := r.pools.WithTx(tx).Create(state)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := r.records.WithTx(tx).CreateEvent(state.ID, "create", string(state.Admin), map[string]string{
		"name":             state.Name,
		"admin_identifier": state.AdminIdentifier,
		"custody":          string(state.Custody),
		"discount_percent": fmt.Sprintf("%d", state.DiscountPercent),
		"fee_percentage":   fmt.Sprintf("%d", state.FeePercentage),
	}); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("写入审计事件失败: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Info("Created pool %s (%s) admin %s custody %s", state.ID, state.Name, state.Admin, state.Custody)
	return &rows.Pool, nil
}

// assignCustody 指定的托管账户必须已配置且空闲，否则取第一个空闲账户
func (r *RegistryLogic) assignCustody(requested pool.Account) (pool.Account, error) {
	if r.custody == nil {
		return "", ErrNoCustodyAvailable
	}
	used, err := r.pools.UsedCustodyAccounts()
	if err != nil {
		return "", err
	}
	for _, acc := range r.custody.CustodyAccounts() {
		if used[string(acc)] {
			continue
		}
		if requested == "" || requested == acc {
			return acc, nil
		}
	}
	if requested != "" {
		return "", fmt.Errorf("%w: %s", ErrCustodyUnavailable, requested)
	}
	return "", ErrNoCustodyAvailable
}

// GetPool 获取资金池
func (r *RegistryLogic) GetPool(poolId string) (*model.PoolModel, error) {
	rows, err := r.pools.Load(poolId, false)
	if err != nil {
		return nil, err
	}
	return &rows.Pool, nil
}

// ListPools 分页获取资金池
func (r *RegistryLogic) ListPools(filter repository.PoolFilter) ([]model.PoolModel, int64, error) {
	if filter.Status != "" && !pool.Status(filter.Status).Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", pool.ErrInvalidParams, filter.Status)
	}
	return r.pools.List(filter)
}

// GetPoolStats 获取资金池统计信息
func (r *RegistryLogic) GetPoolStats(poolId string) (map[string]interface{}, error) {
	rows, err := r.pools.Load(poolId, false)
	if err != nil {
		return nil, err
	}
	contributors, contributions, err := r.records.ContributorCount(poolId)
	if err != nil {
		return nil, fmt.Errorf("获取出资统计失败: %w", err)
	}

	state, err := rows.State()
	if err != nil {
		return nil, err
	}
	active := 0
	for _, p := range state.Participants {
		if p.AmountContributed.Sign() > 0 {
			active++
		}
	}

	// 计算完成百分比
	completion := float64(0)
	if state.WaterMark.Sign() > 0 {
		ratio, _ := new(big.Rat).SetFrac(state.TotalContributions, state.WaterMark).Float64()
		completion = ratio * 100
	}

	// 计算剩余时间
	remaining := time.Duration(0)
	if state.Status == pool.StatusDueDiligence && time.Now().Before(state.DueDiligenceDeadline) {
		remaining = time.Until(state.DueDiligenceDeadline)
	}

	return map[string]interface{}{
		"pool_id":               state.ID,
		"status":                string(state.Status),
		"total_contributions":   state.TotalContributions.String(),
		"water_mark":            state.WaterMark.String(),
		"water_mark_reached":    state.WaterMark.Sign() == 0 || state.TotalContributions.Cmp(state.WaterMark) >= 0,
		"completion_percentage": completion,
		"participant_count":     active,
		"contributor_count":     contributors,
		"contribution_count":    contributions,
		"issued_asset_balance":  state.IssuedAssetBalance.String(),
		"total_asset_claimed":   state.TotalAssetClaimed.String(),
		"remaining_time":        remaining.String(),
	}, nil
}

// GetAllPoolStats 获取所有资金池的统计信息
func (r *RegistryLogic) GetAllPoolStats() (map[string]interface{}, error) {
	counts, err := r.pools.CountByStatus()
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int64, len(counts))
	var total int64
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}

	var totalInvestors int64
	if err := r.db.Model(&model.ContributeRecordModel{}).
		Where("action = ?", model.ContributeActionContribute).
		Distinct("account").
		Count(&totalInvestors).Error; err != nil {
		return nil, fmt.Errorf("统计出资人失败: %w", err)
	}

	return map[string]interface{}{
		"totalPools":     total,
		"poolsByStatus":  byStatus,
		"totalInvestors": totalInvestors,
	}, nil
}
