package repository

import (
	"encoding/json"
	"fmt"

	"github.com/blues/poolparty/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordRepository 流水与审计记录
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建记录仓储
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// WithTx 在事务内使用
func (r *RecordRepository) WithTx(tx *gorm.DB) *RecordRepository {
	return &RecordRepository{db: tx}
}

func (r *RecordRepository) CreateContribute(rec *model.ContributeRecordModel) error {
	return r.db.Create(rec).Error
}

func (r *RecordRepository) CreateRefund(rec *model.RefundRecordModel) error {
	return r.db.Create(rec).Error
}

func (r *RecordRepository) CreateSettlement(rec *model.SettlementRecordModel) error {
	return r.db.Create(rec).Error
}

func (r *RecordRepository) CreateClaim(rec *model.ClaimRecordModel) error {
	return r.db.Create(rec).Error
}

// CreateEvent 写入审计事件，data 序列化为 JSON
func (r *RecordRepository) CreateEvent(poolId, eventType, actor string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return r.db.Create(&model.EventModel{
		PoolId:    poolId,
		EventType: eventType,
		Actor:     actor,
		Data:      datatypes.JSON(raw),
	}).Error
}

// TxHashUsed 入金交易是否已经记账
func (r *RecordRepository) TxHashUsed(txHash string) (bool, error) {
	for _, m := range []any{&model.ContributeRecordModel{}, &model.SettlementRecordModel{}} {
		var count int64
		if err := r.db.Model(m).Where("tx_hash = ?", txHash).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RecordFilter 记录查询条件
type RecordFilter struct {
	PoolId   string
	Account  string
	Page     int
	PageSize int
}

func (r *RecordRepository) page(q *gorm.DB, filter RecordFilter, out any) (int64, error) {
	q = q.Where("pool_id = ?", filter.PoolId)
	if filter.Account != "" {
		q = q.Where("account = ?", filter.Account)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	if err := q.Order("id desc").Offset((page - 1) * size).Limit(size).Find(out).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *RecordRepository) ListContributes(filter RecordFilter) ([]model.ContributeRecordModel, int64, error) {
	var out []model.ContributeRecordModel
	total, err := r.page(r.db.Model(&model.ContributeRecordModel{}), filter, &out)
	return out, total, err
}

func (r *RecordRepository) ListRefunds(filter RecordFilter) ([]model.RefundRecordModel, int64, error) {
	var out []model.RefundRecordModel
	total, err := r.page(r.db.Model(&model.RefundRecordModel{}), filter, &out)
	return out, total, err
}

func (r *RecordRepository) ListClaims(filter RecordFilter) ([]model.ClaimRecordModel, int64, error) {
	var out []model.ClaimRecordModel
	total, err := r.page(r.db.Model(&model.ClaimRecordModel{}), filter, &out)
	return out, total, err
}

// ListSettlements 结算记录没有参与者维度
func (r *RecordRepository) ListSettlements(filter RecordFilter) ([]model.SettlementRecordModel, int64, error) {
	filter.Account = ""
	var out []model.SettlementRecordModel
	total, err := r.page(r.db.Model(&model.SettlementRecordModel{}), filter, &out)
	return out, total, err
}

// ListEvents Account 过滤的是事件发起人
func (r *RecordRepository) ListEvents(filter RecordFilter) ([]model.EventModel, int64, error) {
	q := r.db.Model(&model.EventModel{})
	if filter.Account != "" {
		q = q.Where("actor = ?", filter.Account)
		filter.Account = ""
	}
	var out []model.EventModel
	total, err := r.page(q, filter, &out)
	return out, total, err
}

// ContributorCount 曾经出资的账户数与出资次数
func (r *RecordRepository) ContributorCount(poolId string) (contributors int64, contributions int64, err error) {
	q := r.db.Model(&model.ContributeRecordModel{}).
		Where("pool_id = ? AND action = ?", poolId, model.ContributeActionContribute)
	if err = q.Count(&contributions).Error; err != nil {
		return 0, 0, err
	}
	if err = r.db.Model(&model.ContributeRecordModel{}).
		Where("pool_id = ? AND action = ?", poolId, model.ContributeActionContribute).
		Distinct("account").Count(&contributors).Error; err != nil {
		return 0, 0, err
	}
	return contributors, contributions, nil
}
