package handler

import (
	"net/http"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/repository"
	"github.com/gin-gonic/gin"
)

// RecordHandler 流水记录处理器
type RecordHandler struct {
	recordLogic *logic.RecordLogic
}

// NewRecordHandler 创建流水记录处理器
func NewRecordHandler(recordLogic *logic.RecordLogic) *RecordHandler {
	return &RecordHandler{
		recordLogic: recordLogic,
	}
}

// filter 读取资金池 id、分页与可选的 account 查询参数
func (h *RecordHandler) filter(c *gin.Context) (repository.RecordFilter, bool) {
	page, pageSize := pageParams(c)
	f := repository.RecordFilter{
		PoolId:   c.Param("id"),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := c.Query("account"); raw != "" {
		acc, err := chain.ParseAccount(raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的账户地址")
			return f, false
		}
		f.Account = string(acc)
	}
	return f, true
}

func (h *RecordHandler) respond(c *gin.Context, message string, f repository.RecordFilter, records interface{}, total int64) {
	SuccessResponse(c, http.StatusOK, message, RecordsResponse{
		Records:    records,
		Pagination: newPagination(f.Page, f.PageSize, total),
	})
}

// GetContributions 获取出资记录
func (h *RecordHandler) GetContributions(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	records, total, err := h.recordLogic.GetContributions(f)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respond(c, "获取出资记录成功", f, toContributeRecordResponses(records), total)
}

// GetRefunds 获取退款记录
func (h *RecordHandler) GetRefunds(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	records, total, err := h.recordLogic.GetRefunds(f)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respond(c, "获取退款记录成功", f, toRefundRecordResponses(records), total)
}

// GetRefundStats 获取退款统计信息
func (h *RecordHandler) GetRefundStats(c *gin.Context) {
	stats, err := h.recordLogic.GetRefundStats(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取退款统计信息成功", stats)
}

// GetClaims 获取领取记录
func (h *RecordHandler) GetClaims(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	records, total, err := h.recordLogic.GetClaims(f)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respond(c, "获取领取记录成功", f, toClaimRecordResponses(records), total)
}

// GetSettlements 获取结算记录
func (h *RecordHandler) GetSettlements(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	records, total, err := h.recordLogic.GetSettlements(f)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respond(c, "获取结算记录成功", f, toSettlementRecordResponses(records), total)
}

// GetEvents 获取审计事件，account 过滤的是发起人
func (h *RecordHandler) GetEvents(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	events, total, err := h.recordLogic.GetEvents(f)
	if err != nil {
		HandleError(c, err)
		return
	}
	h.respond(c, "获取事件列表成功", f, toEventResponses(events), total)
}
