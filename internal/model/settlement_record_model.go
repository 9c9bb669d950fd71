package model

import (
	"time"
)

// SettlementRecordModel 与销售方之间的结算记录
type SettlementRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId         string         `json:"pool_id" gorm:"index;not null"`
	SettlementType SettlementType `json:"settlement_type" gorm:"not null"`
	Operator       string         `json:"operator" gorm:"not null"`
	TotalAmount    string         `json:"total_amount"`         // 转给销售方的金额
	SuppliedAmount string         `json:"supplied_amount"`      // 管理员补足的金额
	TxHash         string         `json:"tx_hash" gorm:"index"` // 补足金额的入金交易
	Subsidy        string         `json:"subsidy"`
	Fee            string         `json:"fee"`
	ReturnedAmount string         `json:"returned_amount"` // 找零或取回的金额
	Status         string         `json:"status" gorm:"not null"`
	SettlementTime time.Time      `json:"settlement_time"`
}

// SettlementType 结算类型
type SettlementType string

const (
	SettlementTypeRelease     SettlementType = "release"      // 释放资金
	SettlementTypeVendorClaim SettlementType = "vendor_claim" // 向销售方领取
	SettlementTypeRefund      SettlementType = "refund"       // 退款
)

// TableName 自定义表名
func (SettlementRecordModel) TableName() string {
	return "settlement_record"
}
