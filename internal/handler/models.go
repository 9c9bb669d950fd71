package handler

import (
	"time"

	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// 请求模型，金额均为 wei 的十进制字符串

// CreatePoolRequest 创建资金池请求
type CreatePoolRequest struct {
	Name                 string  `json:"name" binding:"required"`
	Description          string  `json:"description"`
	MetadataHash         string  `json:"metadataHash"`
	AdminIdentifier      string  `json:"adminIdentifier" binding:"required"`
	Custody              string  `json:"custody"`
	WaterMark            string  `json:"waterMark"`
	GroupTokenPrice      string  `json:"groupTokenPrice"`
	PublicTokenPrice     string  `json:"publicTokenPrice"`
	MinContribution      string  `json:"minContribution"`
	MaxContribution      string  `json:"maxContribution"`
	MaxAllocation        string  `json:"maxAllocation"`
	DiscountPercent      uint64  `json:"discountPercent"`
	FeePercentage        *uint64 `json:"feePercentage"`
	DueDiligenceDuration string  `json:"dueDiligenceDuration"` // 例如 72h
}

// ContributeRequest 出资请求
type ContributeRequest struct {
	Amount string `json:"amount" binding:"required"`
	TxHash string `json:"txHash"`
}

// ContributeTokensRequest 按份数出资请求
type ContributeTokensRequest struct {
	Quantity string `json:"quantity" binding:"required"`
	TxHash   string `json:"txHash"`
}

// KickRequest 移除参与者请求
type KickRequest struct {
	Account string `json:"account" binding:"required"`
	Reason  string `json:"reason"` // other | kyc
}

// ConfigureRequest 销售配置请求
type ConfigureRequest struct {
	SaleTarget            string `json:"saleTarget" binding:"required"`
	IssuedAssetRef        string `json:"issuedAssetRef" binding:"required"`
	BuyEntryPoint         string `json:"buyEntryPoint"`
	VendorClaimEntryPoint string `json:"vendorClaimEntryPoint"`
	RefundEntryPoint      string `json:"refundEntryPoint"`
	IsRefundable          bool   `json:"isRefundable"`
	ContactInfo           string `json:"contactInfo"`
}

// ToSpec 转换为销售配置
func (r ConfigureRequest) ToSpec() pool.Spec {
	return pool.Spec{
		SaleTarget:            r.SaleTarget,
		IssuedAssetRef:        r.IssuedAssetRef,
		BuyEntryPoint:         r.BuyEntryPoint,
		VendorClaimEntryPoint: r.VendorClaimEntryPoint,
		RefundEntryPoint:      r.RefundEntryPoint,
		IsRefundable:          r.IsRefundable,
		ContactInfo:           r.ContactInfo,
	}
}

// ReleaseRequest 释放资金请求，supplied 必须等于补贴 + 服务费
// txHash 为管理员把 supplied 转入托管账户的交易
type ReleaseRequest struct {
	Supplied string `json:"supplied" binding:"required"`
	TxHash   string `json:"txHash"`
}

// 资金池相关响应模型

// PoolResponse 资金池响应模型
type PoolResponse struct {
	PoolID               string     `json:"poolId"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	MetadataHash         string     `json:"metadataHash"`
	AdminIdentifier      string     `json:"adminIdentifier"`
	Admin                string     `json:"admin"`
	Custody              string     `json:"custody"`
	Status               string     `json:"status"`
	TotalContributions   string     `json:"totalContributions"`
	DiscountPercent      uint64     `json:"discountPercent"`
	FeePercentage        uint64     `json:"feePercentage"`
	MinContribution      string     `json:"minContribution"`
	MaxContribution      string     `json:"maxContribution"`
	MaxAllocation        string     `json:"maxAllocation"`
	WaterMark            string     `json:"waterMark"`
	GroupTokenPrice      string     `json:"groupTokenPrice"`
	PublicTokenPrice     string     `json:"publicTokenPrice"`
	DueDiligenceDuration string     `json:"dueDiligenceDuration"`
	DueDiligenceDeadline *time.Time `json:"dueDiligenceDeadline"`
	Spec                 pool.Spec  `json:"spec"`
	Subsidy              string     `json:"subsidy"`
	Fee                  string     `json:"fee"`
	RequiredReleaseValue string     `json:"requiredReleaseValue"`
	Released             bool       `json:"released"`
	IssuedAssetBalance   string     `json:"issuedAssetBalance"`
	TotalAssetClaimed    string     `json:"totalAssetClaimed"`
	BalanceRemaining     string     `json:"balanceRemaining"`
	LockedAt             *time.Time `json:"lockedAt"`
	ReleasedAt           *time.Time `json:"releasedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// ParticipantResponse 参与者响应模型
type ParticipantResponse struct {
	Account                string `json:"account"`
	AmountContributed      string `json:"amountContributed"`
	PercentageContribution string `json:"percentageContribution"`
	LastAmountClaimed      string `json:"lastAmountClaimed"`
	RefundAmount           string `json:"refundAmount"`
	RefundPaid             string `json:"refundPaid"`
	Kicked                 bool   `json:"kicked"`
	KickReason             string `json:"kickReason,omitempty"`
}

// ContributionsDueResponse 可领取金额
type ContributionsDueResponse struct {
	Account   string `json:"account"`
	TokensDue string `json:"tokensDue"`
	RefundDue string `json:"refundDue"`
}

// ReleaseResponse 释放结果
type ReleaseResponse struct {
	Forwarded string `json:"forwarded"`
	Subsidy   string `json:"subsidy"`
	Fee       string `json:"fee"`
	Change    string `json:"change"`
	Status    string `json:"status"`
}

// RefundResponse 退款结果
type RefundResponse struct {
	Held      string `json:"held"`
	Recovered string `json:"recovered"`
	Assigned  string `json:"assigned"`
}

// AmountResponse 单个金额结果
type AmountResponse struct {
	Amount string `json:"amount"`
}

// GetPoolsResponse 资金池列表响应
type GetPoolsResponse struct {
	Pools      []PoolResponse `json:"pools"`
	Pagination Pagination     `json:"pagination"`
}

// 记录相关响应模型

// ContributeRecordResponse 出资记录响应模型
type ContributeRecordResponse struct {
	ID        int64     `json:"id"`
	PoolID    string    `json:"poolId"`
	Account   string    `json:"account"`
	Action    string    `json:"action"`
	Amount    string    `json:"amount"`
	Quantity  string    `json:"quantity,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RefundRecordResponse 退款记录响应模型
type RefundRecordResponse struct {
	ID        int64     `json:"id"`
	PoolID    string    `json:"poolId"`
	Account   string    `json:"account"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClaimRecordResponse 领取记录响应模型
type ClaimRecordResponse struct {
	ID        int64     `json:"id"`
	PoolID    string    `json:"poolId"`
	Account   string    `json:"account"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// SettlementRecordResponse 结算记录响应模型
type SettlementRecordResponse struct {
	ID             int64     `json:"id"`
	PoolID         string    `json:"poolId"`
	Type           string    `json:"type"`
	Operator       string    `json:"operator"`
	TotalAmount    string    `json:"totalAmount"`
	SuppliedAmount string    `json:"suppliedAmount"`
	TxHash         string    `json:"txHash,omitempty"`
	Subsidy        string    `json:"subsidy"`
	Fee            string    `json:"fee"`
	ReturnedAmount string    `json:"returnedAmount"`
	Status         string    `json:"status"`
	SettlementTime time.Time `json:"settlementTime"`
}

// EventResponse 审计事件响应模型
type EventResponse struct {
	ID        int64       `json:"id"`
	PoolID    string      `json:"poolId"`
	EventType string      `json:"eventType"`
	Actor     string      `json:"actor"`
	Data      interface{} `json:"data"`
	CreatedAt time.Time   `json:"createdAt"`
}

// RecordsResponse 记录列表响应
type RecordsResponse struct {
	Records    interface{} `json:"records"`
	Pagination Pagination  `json:"pagination"`
}

// 转换函数

// ToPoolResponse 将数据库模型转换为响应模型
func ToPoolResponse(p *model.PoolModel) PoolResponse {
	return PoolResponse{
		PoolID:               p.PoolId,
		Name:                 p.Name,
		Description:          p.Description,
		MetadataHash:         p.MetadataHash,
		AdminIdentifier:      p.AdminIdentifier,
		Admin:                p.AdminAccount,
		Custody:              p.CustodyAccount,
		Status:               p.Status,
		TotalContributions:   p.TotalContributions,
		DiscountPercent:      p.DiscountPercent,
		FeePercentage:        p.FeePercentage,
		MinContribution:      p.MinContribution,
		MaxContribution:      p.MaxContribution,
		MaxAllocation:        p.MaxAllocation,
		WaterMark:            p.WaterMark,
		GroupTokenPrice:      p.GroupTokenPrice,
		PublicTokenPrice:     p.PublicTokenPrice,
		DueDiligenceDuration: (time.Duration(p.DueDiligenceSeconds) * time.Second).String(),
		DueDiligenceDeadline: p.DueDiligenceDeadline,
		Spec: pool.Spec{
			SaleTarget:            p.SaleTarget,
			IssuedAssetRef:        p.IssuedAssetRef,
			BuyEntryPoint:         p.BuyEntryPoint,
			VendorClaimEntryPoint: p.VendorClaimEntryPoint,
			RefundEntryPoint:      p.RefundEntryPoint,
			IsRefundable:          p.IsRefundable,
			ContactInfo:           p.ContactInfo,
		},
		Subsidy:              p.Subsidy,
		Fee:                  p.Fee,
		RequiredReleaseValue: addAmounts(p.Subsidy, p.Fee),
		Released:             p.Released,
		IssuedAssetBalance:   p.IssuedAssetBalance,
		TotalAssetClaimed:    p.TotalAssetClaimed,
		BalanceRemaining:     p.BalanceRemainingSnapshot,
		LockedAt:             p.LockedAt,
		ReleasedAt:           p.ReleasedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ToPoolResponseList 将数据库模型列表转换为响应模型列表
func ToPoolResponseList(pools []model.PoolModel) []PoolResponse {
	result := make([]PoolResponse, len(pools))
	for i := range pools {
		result[i] = ToPoolResponse(&pools[i])
	}
	return result
}

// ToParticipantResponse 参与者转换
func ToParticipantResponse(p *model.ParticipantModel) ParticipantResponse {
	return ParticipantResponse{
		Account:                p.Account,
		AmountContributed:      p.AmountContributed,
		PercentageContribution: p.PercentageContribution,
		LastAmountClaimed:      p.LastAmountClaimed,
		RefundAmount:           p.RefundAmount,
		RefundPaid:             p.RefundPaid,
		Kicked:                 p.Kicked,
		KickReason:             p.KickReason,
	}
}

func toContributeRecordResponses(records []model.ContributeRecordModel) []ContributeRecordResponse {
	result := make([]ContributeRecordResponse, len(records))
	for i, r := range records {
		result[i] = ContributeRecordResponse{
			ID:        r.Id,
			PoolID:    r.PoolId,
			Account:   r.Account,
			Action:    string(r.Action),
			Amount:    r.Amount,
			Quantity:  r.Quantity,
			Reason:    r.Reason,
			TxHash:    r.TxHash,
			CreatedAt: r.CreatedAt,
		}
	}
	return result
}

func toRefundRecordResponses(records []model.RefundRecordModel) []RefundRecordResponse {
	result := make([]RefundRecordResponse, len(records))
	for i, r := range records {
		result[i] = RefundRecordResponse{
			ID:        r.Id,
			PoolID:    r.PoolId,
			Account:   r.Account,
			Amount:    r.Amount,
			Reason:    string(r.Reason),
			Status:    string(r.Status),
			CreatedAt: r.CreatedAt,
		}
	}
	return result
}

func toClaimRecordResponses(records []model.ClaimRecordModel) []ClaimRecordResponse {
	result := make([]ClaimRecordResponse, len(records))
	for i, r := range records {
		result[i] = ClaimRecordResponse{
			ID:        r.Id,
			PoolID:    r.PoolId,
			Account:   r.Account,
			Amount:    r.Amount,
			CreatedAt: r.CreatedAt,
		}
	}
	return result
}

func toSettlementRecordResponses(records []model.SettlementRecordModel) []SettlementRecordResponse {
	result := make([]SettlementRecordResponse, len(records))
	for i, r := range records {
		result[i] = SettlementRecordResponse{
			ID:             r.Id,
			PoolID:         r.PoolId,
			Type:           string(r.SettlementType),
			Operator:       r.Operator,
			TotalAmount:    r.TotalAmount,
			SuppliedAmount: r.SuppliedAmount,
			TxHash:         r.TxHash,
			Subsidy:        r.Subsidy,
			Fee:            r.Fee,
			ReturnedAmount: r.ReturnedAmount,
			Status:         r.Status,
			SettlementTime: r.SettlementTime,
		}
	}
	return result
}

func toEventResponses(events []model.EventModel) []EventResponse {
	result := make([]EventResponse, len(events))
	for i, e := range events {
		result[i] = EventResponse{
			ID:        e.Id,
			PoolID:    e.PoolId,
			EventType: e.EventType,
			Actor:     e.Actor,
			Data:      e.Data,
			CreatedAt: e.CreatedAt,
		}
	}
	return result
}
