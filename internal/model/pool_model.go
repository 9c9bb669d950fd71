package model

import (
	"time"
)

// PoolModel 资金池
type PoolModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	PoolId       string `json:"pool_id" gorm:"uniqueIndex;not null"`
	Name         string `json:"name" gorm:"not null"`
	Description  string `json:"description" gorm:"type:text"`
	MetadataHash string `json:"metadata_hash"`

	// 管理员与托管
	AdminIdentifier string `json:"admin_identifier" gorm:"not null"`
	AdminAccount    string `json:"admin_account" gorm:"not null"`
	CustodyAccount  string `json:"custody_account" gorm:"uniqueIndex;not null"`

	// 状态
	Status string `json:"status" gorm:"index;not null"`

	// 募集参数，金额均为十进制字符串
	TotalContributions   string     `json:"total_contributions" gorm:"not null"`
	DiscountPercent      uint64     `json:"discount_percent"`
	FeePercentage        uint64     `json:"fee_percentage"`
	MinContribution      string     `json:"min_contribution"`
	MaxContribution      string     `json:"max_contribution"`
	MaxAllocation        string     `json:"max_allocation"`
	WaterMark            string     `json:"water_mark"`
	GroupTokenPrice      string     `json:"group_token_price"`
	PublicTokenPrice     string     `json:"public_token_price"`
	DueDiligenceSeconds  int64      `json:"due_diligence_seconds"`
	DueDiligenceDeadline *time.Time `json:"due_diligence_deadline"`

	// 销售配置
	SaleTarget            string `json:"sale_target"`
	IssuedAssetRef        string `json:"issued_asset_ref"`
	BuyEntryPoint         string `json:"buy_entry_point"`
	VendorClaimEntryPoint string `json:"vendor_claim_entry_point"`
	RefundEntryPoint      string `json:"refund_entry_point"`
	IsRefundable          bool   `json:"is_refundable"`
	ContactInfo           string `json:"contact_info"`

	// 结算
	Subsidy                  string     `json:"subsidy"`
	Fee                      string     `json:"fee"`
	Released                 bool       `json:"released"`
	IssuedAssetBalance       string     `json:"issued_asset_balance"`
	TotalAssetClaimed        string     `json:"total_asset_claimed"`
	BalanceRemainingSnapshot string     `json:"balance_remaining_snapshot"`
	LockedAt                 *time.Time `json:"locked_at"`
	ReleasedAt               *time.Time `json:"released_at"`
}

// TableName 自定义表名
func (PoolModel) TableName() string {
	return "pool"
}
