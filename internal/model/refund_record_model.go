package model

import (
	"time"
)

// RefundRecordModel 退款记录
type RefundRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId  string       `json:"pool_id" gorm:"index;not null"`
	Account string       `json:"account" gorm:"index;not null"`
	Amount  string       `json:"amount" gorm:"not null"`
	Reason  RefundReason `json:"reason" gorm:"not null"`
	Status  RefundStatus `json:"status" gorm:"default:'success'"`
}

// RefundReason 退款原因
type RefundReason string

const (
	RefundReasonLeave   RefundReason = "leave"   // 主动退出
	RefundReasonKick    RefundReason = "kick"    // 被移除
	RefundReasonSettled RefundReason = "settled" // 结算后领取
)

// RefundStatus 退款状态
type RefundStatus string

const (
	RefundStatusSuccess RefundStatus = "success" // 成功
	RefundStatusFailed  RefundStatus = "failed"  // 失败
)

// TableName 自定义表名
func (RefundRecordModel) TableName() string {
	return "refund_record"
}
