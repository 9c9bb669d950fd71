package handler

import (
	"errors"
	"net/http"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// errorStatus 业务错误对应的 HTTP 状态码
var errorStatus = []struct {
	err    error
	status int
}{
	{repository.ErrPoolNotFound, http.StatusNotFound},
	{pool.ErrNotAParticipant, http.StatusNotFound},
	{pool.ErrUnauthorized, http.StatusForbidden},
	{pool.ErrInvalidState, http.StatusConflict},
	{pool.ErrNothingDue, http.StatusConflict},
	{logic.ErrTxHashUsed, http.StatusConflict},
	{logic.ErrCustodyUnavailable, http.StatusConflict},
	{logic.ErrNoCustodyAvailable, http.StatusServiceUnavailable},
	{pool.ErrCapExceeded, http.StatusBadRequest},
	{pool.ErrInsufficientValue, http.StatusBadRequest},
	{pool.ErrInvalidSpec, http.StatusBadRequest},
	{pool.ErrInvalidParams, http.StatusBadRequest},
	{pool.ErrAdminNotFound, http.StatusBadRequest},
	{logic.ErrDepositRequired, http.StatusBadRequest},
	{chain.ErrDepositNotFound, http.StatusBadRequest},
	{chain.ErrDepositMismatch, http.StatusBadRequest},
	{chain.ErrDepositUnconfirmed, http.StatusAccepted},
	{pool.ErrExternalCallFailed, http.StatusBadGateway},
}

// HandleError 按错误类型返回对应状态码
func HandleError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			ErrorResponse(c, e.status, err.Error())
			return
		}
	}
	logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	ErrorResponse(c, http.StatusInternalServerError, err.Error())
}
