package model

import (
	"time"
)

// ClaimRecordModel 资产领取记录
type ClaimRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId  string `json:"pool_id" gorm:"index;not null"`
	Account string `json:"account" gorm:"index;not null"`
	Amount  string `json:"amount" gorm:"not null"`
}

// TableName 自定义表名
func (ClaimRecordModel) TableName() string {
	return "claim_record"
}
