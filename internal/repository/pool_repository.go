package repository

import (
	"errors"
	"fmt"

	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPoolNotFound 资金池不存在
var ErrPoolNotFound = errors.New("资金池不存在")

// PoolRepository 资金池持久化
type PoolRepository struct {
	db *gorm.DB
}

// NewPoolRepository 创建资金池仓储
func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// WithTx 在事务内使用
func (r *PoolRepository) WithTx(tx *gorm.DB) *PoolRepository {
	return &PoolRepository{db: tx}
}

// PoolRows 一个资金池在数据库中的全部行
type PoolRows struct {
	Pool         model.PoolModel
	Participants []model.ParticipantModel
}

// State 还原领域状态
func (p *PoolRows) State() (pool.State, error) {
	return toState(&p.Pool, p.Participants)
}

// Create 保存新建的资金池
func (r *PoolRepository) Create(state pool.State) (*PoolRows, error) {
	rows := &PoolRows{}
	applyState(&rows.Pool, state)
	if err := r.db.Create(&rows.Pool).Error; err != nil {
		return nil, fmt.Errorf("创建资金池失败: %w", err)
	}
	if err := r.saveParticipants(rows, state); err != nil {
		return nil, err
	}
	return rows, nil
}

// Load 读取资金池，forUpdate 时加行锁
func (r *PoolRepository) Load(poolId string, forUpdate bool) (*PoolRows, error) {
	q := r.db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	rows := &PoolRows{}
	if err := q.Where("pool_id = ?", poolId).First(&rows.Pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("获取资金池失败: %w", err)
	}
	if err := r.db.Where("pool_id = ?", poolId).Order("seq asc").Find(&rows.Participants).Error; err != nil {
		return nil, fmt.Errorf("获取参与者失败: %w", err)
	}
	return rows, nil
}

// Save 把新的领域状态写回
func (r *PoolRepository) Save(rows *PoolRows, state pool.State) error {
	applyState(&rows.Pool, state)
	if err := r.db.Save(&rows.Pool).Error; err != nil {
		return fmt.Errorf("更新资金池失败: %w", err)
	}
	return r.saveParticipants(rows, state)
}

func (r *PoolRepository) saveParticipants(rows *PoolRows, state pool.State) error {
	existing := make(map[string]int, len(rows.Participants))
	for i := range rows.Participants {
		existing[rows.Participants[i].Account] = i
	}

	for seq, p := range state.Participants {
		idx, ok := existing[string(p.Account)]
		if !ok {
			rows.Participants = append(rows.Participants, model.ParticipantModel{})
			idx = len(rows.Participants) - 1
		}
		row := &rows.Participants[idx]
		before := *row
		applyParticipant(row, state.ID, seq, p)
		if ok && participantUnchanged(before, *row) {
			continue
		}
		if err := r.db.Save(row).Error; err != nil {
			return fmt.Errorf("更新参与者 %s 失败: %w", p.Account, err)
		}
	}
	return nil
}

func participantUnchanged(a, b model.ParticipantModel) bool {
	return a.AmountContributed == b.AmountContributed &&
		a.PercentageContribution == b.PercentageContribution &&
		a.LastAmountClaimed == b.LastAmountClaimed &&
		a.RefundAmount == b.RefundAmount &&
		a.RefundPaid == b.RefundPaid &&
		a.Kicked == b.Kicked &&
		a.KickReason == b.KickReason
}

// PoolFilter 列表查询条件
type PoolFilter struct {
	Status   string
	Admin    string
	Page     int
	PageSize int
}

// List 分页查询资金池
func (r *PoolRepository) List(filter PoolFilter) ([]model.PoolModel, int64, error) {
	q := r.db.Model(&model.PoolModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Admin != "" {
		q = q.Where("admin_account = ?", filter.Admin)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计资金池失败: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	var pools []model.PoolModel
	if err := q.Order("id desc").Offset((page - 1) * size).Limit(size).Find(&pools).Error; err != nil {
		return nil, 0, fmt.Errorf("获取资金池列表失败: %w", err)
	}
	return pools, total, nil
}

// ListIdsByStatus 按状态列出资金池 id
func (r *PoolRepository) ListIdsByStatus(statuses ...pool.Status) ([]string, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	var ids []string
	if err := r.db.Model(&model.PoolModel{}).Where("status IN ?", names).Order("id asc").Pluck("pool_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("获取资金池失败: %w", err)
	}
	return ids, nil
}

// ListReleasedIds 已释放且仍可领取资产的资金池
func (r *PoolRepository) ListReleasedIds() ([]string, error) {
	var ids []string
	err := r.db.Model(&model.PoolModel{}).
		Where("released = ? AND status IN ?", true, []string{string(pool.StatusInReview), string(pool.StatusClaim)}).
		Order("id asc").Pluck("pool_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("获取资金池失败: %w", err)
	}
	return ids, nil
}

// CountByStatus 各状态资金池数量
func (r *PoolRepository) CountByStatus() (map[pool.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.Model(&model.PoolModel{}).Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计资金池失败: %w", err)
	}
	out := make(map[pool.Status]int64, len(pool.AllStatuses))
	for _, s := range pool.AllStatuses {
		out[s] = 0
	}
	for _, row := range rows {
		out[pool.Status(row.Status)] = row.Count
	}
	return out, nil
}

// UsedCustodyAccounts 已被资金池占用的托管账户
func (r *PoolRepository) UsedCustodyAccounts() (map[string]bool, error) {
	var accounts []string
	if err := r.db.Model(&model.PoolModel{}).Pluck("custody_account", &accounts).Error; err != nil {
		return nil, fmt.Errorf("获取托管账户失败: %w", err)
	}
	used := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		used[a] = true
	}
	return used, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
