package logic

import (
	"fmt"
	"math/big"

	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/repository"
	"gorm.io/gorm"
)

// RecordLogic 流水与审计记录查询
type RecordLogic struct {
	db      *gorm.DB
	pools   *repository.PoolRepository
	records *repository.RecordRepository
}

// NewRecordLogic 创建记录查询逻辑
func NewRecordLogic(db *gorm.DB) *RecordLogic {
	return &RecordLogic{
		db:      db,
		pools:   repository.NewPoolRepository(db),
		records: repository.NewRecordRepository(db),
	}
}

// exists 资金池不存在时返回 repository.ErrPoolNotFound
func (r *RecordLogic) exists(poolId string) error {
	var count int64
	if err := r.db.Model(&model.PoolModel{}).Where("pool_id = ?", poolId).Count(&count).Error; err != nil {
		return fmt.Errorf("获取资金池失败: %w", err)
	}
	if count == 0 {
		return repository.ErrPoolNotFound
	}
	return nil
}

// GetContributions 出资与撤资记录
func (r *RecordLogic) GetContributions(filter repository.RecordFilter) ([]model.ContributeRecordModel, int64, error) {
	if err := r.exists(filter.PoolId); err != nil {
		return nil, 0, err
	}
	records, total, err := r.records.ListContributes(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("获取出资记录失败: %w", err)
	}
	return records, total, nil
}

// GetRefunds 退款记录
func (r *RecordLogic) GetRefunds(filter repository.RecordFilter) ([]model.RefundRecordModel, int64, error) {
	if err := r.exists(filter.PoolId); err != nil {
		return nil, 0, err
	}
	records, total, err := r.records.ListRefunds(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("获取退款记录失败: %w", err)
	}
	return records, total, nil
}

// GetClaims 资产领取记录
func (r *RecordLogic) GetClaims(filter repository.RecordFilter) ([]model.ClaimRecordModel, int64, error) {
	if err := r.exists(filter.PoolId); err != nil {
		return nil, 0, err
	}
	records, total, err := r.records.ListClaims(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("获取领取记录失败: %w", err)
	}
	return records, total, nil
}

// GetSettlements 结算记录
func (r *RecordLogic) GetSettlements(filter repository.RecordFilter) ([]model.SettlementRecordModel, int64, error) {
	if err := r.exists(filter.PoolId); err != nil {
		return nil, 0, err
	}
	records, total, err := r.records.ListSettlements(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("获取结算记录失败: %w", err)
	}
	return records, total, nil
}

// GetEvents 审计事件
func (r *RecordLogic) GetEvents(filter repository.RecordFilter) ([]model.EventModel, int64, error) {
	if err := r.exists(filter.PoolId); err != nil {
		return nil, 0, err
	}
	events, total, err := r.records.ListEvents(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("获取事件列表失败: %w", err)
	}
	return events, total, nil
}

// GetRefundStats 按原因汇总退款金额
// 金额以十进制字符串存储，在内存中累加
func (r *RecordLogic) GetRefundStats(poolId string) (map[string]interface{}, error) {
	if err := r.exists(poolId); err != nil {
		return nil, err
	}
	var refunds []model.RefundRecordModel
	if err := r.db.Where("pool_id = ? AND status = ?", poolId, model.RefundStatusSuccess).Find(&refunds).Error; err != nil {
		return nil, fmt.Errorf("获取退款记录失败: %w", err)
	}

	total := big.NewInt(0)
	byReason := map[model.RefundReason]*big.Int{
		model.RefundReasonLeave:   big.NewInt(0),
		model.RefundReasonKick:    big.NewInt(0),
		model.RefundReasonSettled: big.NewInt(0),
	}
	for _, rec := range refunds {
		amount, err := repository.ParseAmount(rec.Amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, amount)
		if sum, ok := byReason[rec.Reason]; ok {
			sum.Add(sum, amount)
		}
	}

	return map[string]interface{}{
		"total_refunds":  len(refunds),
		"total_amount":   total.String(),
		"leave_amount":   byReason[model.RefundReasonLeave].String(),
		"kick_amount":    byReason[model.RefundReasonKick].String(),
		"settled_amount": byReason[model.RefundReasonSettled].String(),
	}, nil
}
