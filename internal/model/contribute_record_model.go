package model

import (
	"time"
)

// ContributeRecordModel 出资与撤资记录
type ContributeRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId   string           `json:"pool_id" gorm:"index;not null"`
	Account  string           `json:"account" gorm:"index;not null"`
	Action   ContributeAction `json:"action" gorm:"not null"`
	Amount   string           `json:"amount" gorm:"not null"`
	Quantity string           `json:"quantity"` // 按份数出资时的份数
	Reason   string           `json:"reason"`
	TxHash   string           `json:"tx_hash" gorm:"index"`
	BlockNum int64            `json:"block_num"`
}

// ContributeAction 记录类型
type ContributeAction string

const (
	ContributeActionContribute ContributeAction = "contribute" // 出资
	ContributeActionLeave      ContributeAction = "leave"      // 主动退出
	ContributeActionKick       ContributeAction = "kick"       // 被移除
)

// TableName 自定义表名
func (ContributeRecordModel) TableName() string {
	return "contribute_record"
}
