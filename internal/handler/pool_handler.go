package handler

import (
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/gin-gonic/gin"
)

// PoolHandler 资金池处理器
type PoolHandler struct {
	registry *logic.RegistryLogic
	pools    *logic.PoolLogic
}

// NewPoolHandler 创建资金池处理器
func NewPoolHandler(registry *logic.RegistryLogic, pools *logic.PoolLogic) *PoolHandler {
	return &PoolHandler{
		registry: registry,
		pools:    pools,
	}
}

// CreatePool 创建资金池
func (h *PoolHandler) CreatePool(c *gin.Context) {
	var req CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	in := logic.CreatePoolInput{
		Name:            req.Name,
		Description:     req.Description,
		MetadataHash:    req.MetadataHash,
		AdminIdentifier: req.AdminIdentifier,
		DiscountPercent: req.DiscountPercent,
		FeePercentage:   req.FeePercentage,
	}
	if req.Custody != "" {
		custody, err := chain.ParseAccount(req.Custody)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的托管账户")
			return
		}
		in.Custody = custody
	}
	if req.DueDiligenceDuration != "" {
		d, err := time.ParseDuration(req.DueDiligenceDuration)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的尽调时长")
			return
		}
		in.DueDiligenceDuration = &d
	}

	amounts := []struct {
		field string
		raw   string
		dst   **big.Int
	}{
		{"waterMark", req.WaterMark, &in.WaterMark},
		{"groupTokenPrice", req.GroupTokenPrice, &in.GroupTokenPrice},
		{"publicTokenPrice", req.PublicTokenPrice, &in.PublicTokenPrice},
		{"minContribution", req.MinContribution, &in.MinContribution},
		{"maxContribution", req.MaxContribution, &in.MaxContribution},
		{"maxAllocation", req.MaxAllocation, &in.MaxAllocation},
	}
	for _, a := range amounts {
		v, err := parseOptionalAmount(a.field, a.raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		*a.dst = v
	}

	// 调用logic层创建资金池
	created, err := h.registry.CreatePool(c.Request.Context(), in)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "资金池创建成功", ToPoolResponse(created))
}

// GetPools 获取资金池列表
func (h *PoolHandler) GetPools(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := repository.PoolFilter{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	}
	if admin := c.Query("admin"); admin != "" {
		acc, err := chain.ParseAccount(admin)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的管理员地址")
			return
		}
		filter.Admin = string(acc)
	}

	pools, total, err := h.registry.ListPools(filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取资金池列表成功", GetPoolsResponse{
		Pools:      ToPoolResponseList(pools),
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetPool 获取资金池详情
func (h *PoolHandler) GetPool(c *gin.Context) {
	p, err := h.registry.GetPool(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取资金池详情成功", ToPoolResponse(p))
}

// GetPoolStats 获取资金池统计信息
func (h *PoolHandler) GetPoolStats(c *gin.Context) {
	stats, err := h.registry.GetPoolStats(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取资金池统计信息成功", stats)
}

// GetAllPoolStats 获取全部资金池统计
func (h *PoolHandler) GetAllPoolStats(c *gin.Context) {
	stats, err := h.registry.GetAllPoolStats()
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取统计信息成功", stats)
}

// Contribute 出资
func (h *PoolHandler) Contribute(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	part, err := h.pools.Contribute(c.Request.Context(), c.Param("id"), caller, amount, strings.TrimSpace(req.TxHash))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "出资成功", ParticipantResponse{
		Account:                string(part.Account),
		AmountContributed:      formatAmount(part.AmountContributed),
		PercentageContribution: formatAmount(part.PercentageContribution),
		LastAmountClaimed:      formatAmount(part.LastAmountClaimed),
		RefundAmount:           formatAmount(part.RefundAmount),
		RefundPaid:             formatAmount(part.RefundPaid),
		Kicked:                 part.Kicked,
		KickReason:             string(part.KickReason),
	})
}

// ContributeTokens 按份数出资
func (h *PoolHandler) ContributeTokens(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req ContributeTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	quantity, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.pools.ContributeTokens(c.Request.Context(), c.Param("id"), caller, quantity, strings.TrimSpace(req.TxHash))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "出资成功", AmountResponse{Amount: formatAmount(amount)})
}

// Leave 退出资金池
func (h *PoolHandler) Leave(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	amount, err := h.pools.Leave(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "已退出资金池", AmountResponse{Amount: formatAmount(amount)})
}

// Kick 移除参与者
func (h *PoolHandler) Kick(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	account, err := chain.ParseAccount(req.Account)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的参与者地址")
		return
	}
	reason := pool.KickReason(strings.ToLower(strings.TrimSpace(req.Reason)))
	if reason != "" && reason != pool.KickReasonOther && reason != pool.KickReasonKYC {
		ErrorResponse(c, http.StatusBadRequest, "无效的移除原因")
		return
	}

	amount, err := h.pools.Kick(c.Request.Context(), c.Param("id"), caller, account, reason)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "参与者已移除", AmountResponse{Amount: formatAmount(amount)})
}

// Configure 提交销售配置
func (h *PoolHandler) Configure(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.pools.Configure(c.Request.Context(), c.Param("id"), caller, req.ToSpec()); err != nil {
		HandleError(c, err)
		return
	}
	h.respondPool(c, "销售配置已保存")
}

// CompleteConfiguration 完成配置，进入尽调期
func (h *PoolHandler) CompleteConfiguration(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if _, err := h.pools.CompleteConfiguration(c.Request.Context(), c.Param("id"), caller); err != nil {
		HandleError(c, err)
		return
	}
	h.respondPool(c, "已进入尽调期")
}

// StartReview 锁定资金池
func (h *PoolHandler) StartReview(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.pools.StartReview(c.Request.Context(), c.Param("id"), caller); err != nil {
		HandleError(c, err)
		return
	}
	h.respondPool(c, "资金池已锁定")
}

// Release 释放资金给销售方
func (h *PoolHandler) Release(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	supplied, err := parseAmount("supplied", req.Supplied)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.pools.Release(c.Request.Context(), c.Param("id"), caller, supplied, strings.TrimSpace(req.TxHash))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "资金已释放", ReleaseResponse{
		Forwarded: formatAmount(receipt.Forwarded),
		Subsidy:   formatAmount(receipt.Subsidy),
		Fee:       formatAmount(receipt.Fee),
		Change:    formatAmount(receipt.Change),
		Status:    string(receipt.Status),
	})
}

// ClaimFromVendor 向销售方领取资产
func (h *PoolHandler) ClaimFromVendor(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.pools.ClaimFromVendor(c.Request.Context(), c.Param("id"), caller); err != nil {
		HandleError(c, err)
		return
	}
	h.respondPool(c, "已向销售方领取")
}

// Refund 放弃购买并退款
func (h *PoolHandler) Refund(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	receipt, err := h.pools.Refund(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "已进入退款状态", RefundResponse{
		Held:      formatAmount(receipt.Held),
		Recovered: formatAmount(receipt.Recovered),
		Assigned:  formatAmount(receipt.Assigned),
	})
}

// Claim 领取资产
func (h *PoolHandler) Claim(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	amount, err := h.pools.Claim(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "领取成功", AmountResponse{Amount: formatAmount(amount)})
}

// ClaimRefund 领取退款
func (h *PoolHandler) ClaimRefund(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	amount, err := h.pools.ClaimRefund(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "退款已发放", AmountResponse{Amount: formatAmount(amount)})
}

// SyncAsset 刷新资产余额
func (h *PoolHandler) SyncAsset(c *gin.Context) {
	changed, err := h.pools.SyncAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "资产余额已刷新", gin.H{"changed": changed})
}

// GetParticipants 获取参与者列表
func (h *PoolHandler) GetParticipants(c *gin.Context) {
	parts, err := h.pools.GetParticipants(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	result := make([]ParticipantResponse, len(parts))
	for i := range parts {
		result[i] = ToParticipantResponse(&parts[i])
	}
	SuccessResponse(c, http.StatusOK, "获取参与者成功", result)
}

// GetParticipant 获取单个参与者
func (h *PoolHandler) GetParticipant(c *gin.Context) {
	account, err := pathAccount(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	part, err := h.pools.GetParticipant(c.Param("id"), account)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取参与者成功", ToParticipantResponse(part))
}

// GetContributionsDue 查询可领取的资产与退款
func (h *PoolHandler) GetContributionsDue(c *gin.Context) {
	account, err := pathAccount(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	due, err := h.pools.GetContributionsDue(c.Param("id"), account)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "查询成功", ContributionsDueResponse{
		Account:   string(account),
		TokensDue: formatAmount(due.TokensDue),
		RefundDue: formatAmount(due.RefundDue),
	})
}

func (h *PoolHandler) caller(c *gin.Context) (pool.Account, bool) {
	acc, err := callerAccount(c)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return acc, true
}

// respondPool 状态变更后返回最新的资金池
func (h *PoolHandler) respondPool(c *gin.Context, message string) {
	p, err := h.registry.GetPool(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, message, ToPoolResponse(p))
}
