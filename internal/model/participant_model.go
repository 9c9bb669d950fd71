package model

import (
	"time"
)

// ParticipantModel 资金池参与者
type ParticipantModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId                 string `json:"pool_id" gorm:"uniqueIndex:idx_participant_pool_account;not null"`
	Account                string `json:"account" gorm:"uniqueIndex:idx_participant_pool_account;not null"`
	Seq                    int    `json:"seq" gorm:"not null"` // 首次出资顺序
	AmountContributed      string `json:"amount_contributed" gorm:"not null"`
	PercentageContribution string `json:"percentage_contribution" gorm:"not null"` // 1e18 为 100%
	LastAmountClaimed      string `json:"last_amount_claimed" gorm:"not null"`
	RefundAmount           string `json:"refund_amount" gorm:"not null"`
	RefundPaid             string `json:"refund_paid" gorm:"not null"`
	Kicked                 bool   `json:"kicked"`
	KickReason             string `json:"kick_reason"`
}

// TableName 自定义表名
func (ParticipantModel) TableName() string {
	return "participant"
}
