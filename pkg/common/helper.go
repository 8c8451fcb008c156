package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/xerr"
)

// 通用业务码（非交易所错误）
const (
	CodeBadRequest  = 1001001
	CodeRateLimited = 1003001
	CodeUnavailable = 1004001
	CodeInternal    = 5000000
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Warn(c, "http error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
	)
	Fail(c, httpStatus, code, msg)
}

// FailFromErr 交易所错误按分类映射 HTTP 状态，code/message 原样透出；
// 其它错误只回固定文案，细节进日志
func FailFromErr(c *gin.Context, err error) {
	ce, ok := xerr.As(err)
	if !ok {
		FailLogged(c, http.StatusInternalServerError, CodeInternal, "internal error", err)
		return
	}
	status := HTTPStatus(ce)
	if status >= http.StatusInternalServerError {
		FailLogged(c, status, ce.Code, ce.Msg, err)
		return
	}
	Fail(c, status, ce.Code, ce.Msg)
}

func HTTPStatus(ce *xerr.CodeError) int {
	switch ce.Class {
	case xerr.ClassCapacity, xerr.ClassState:
		return http.StatusConflict
	case xerr.ClassLookup:
		return http.StatusNotFound
	case xerr.ClassAuth:
		return http.StatusForbidden
	case xerr.ClassValidation:
		return http.StatusBadRequest
	case xerr.ClassSafety:
		return http.StatusUnprocessableEntity
	case xerr.ClassLedger:
		if ce == xerr.ErrLedgerUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusPaymentRequired
	}
	switch ce.Code {
	case xerr.RequestParamsError:
		return http.StatusBadRequest
	case xerr.RecordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
