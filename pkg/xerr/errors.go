package xerr

import (
	"errors"
	"fmt"
)

// 通用错误码（网关层使用）
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	DbError            = 501
	RecordNotFound     = 404
)

// Class 错误分类，决定调用方该怎么处理
type Class uint8

const (
	ClassInternal Class = iota
	ClassCapacity
	ClassLookup
	ClassAuth
	ClassValidation
	ClassState
	ClassSafety
	ClassLedger
)

func (c Class) String() string {
	switch c {
	case ClassCapacity:
		return "capacity"
	case ClassLookup:
		return "lookup"
	case ClassAuth:
		return "authorization"
	case ClassValidation:
		return "validation"
	case ClassState:
		return "state"
	case ClassSafety:
		return "safety"
	case ClassLedger:
		return "ledger"
	default:
		return "internal"
	}
}

type CodeError struct {
	Code  int    `json:"code"`
	Name  string `json:"name,omitempty"`
	Msg   string `json:"msg"`
	Class Class  `json:"-"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

func newDex(code int, name, msg string, class Class) *CodeError {
	e := &CodeError{Code: code, Name: name, Msg: msg, Class: class}
	byCode[code] = e
	return e
}

var byCode = make(map[int]*CodeError, 32)

// 交易所错误码，6000 起按程序错误枚举的顺序排列，索引器靠它识别
var (
	ErrOrderBookFull             = newDex(6000, "OrderBookFull", "The order book is full.", ClassCapacity)
	ErrOrderNotFound             = newDex(6001, "OrderNotFound", "Order not found.", ClassLookup)
	ErrNodeNotFound              = newDex(6002, "NodeNotFound", "Node not found in the order book.", ClassLookup)
	ErrUnauthorized              = newDex(6003, "Unauthorized", "Unauthorized action.", ClassAuth)
	ErrInvalidOrderInput         = newDex(6004, "InvalidOrderInput", "Invalid order input.", ClassValidation)
	ErrOrderWouldCross           = newDex(6005, "OrderWouldCross", "Post-only order would cross the book.", ClassState)
	ErrSelfTradeForbidden        = newDex(6006, "SelfTradeForbidden", "Self trade is not allowed.", ClassSafety)
	ErrMathOverflow              = newDex(6007, "MathOverflow", "Math overflow.", ClassSafety)
	ErrInvalidFee                = newDex(6008, "InvalidFee", "Invalid fee value.", ClassValidation)
	ErrOrderBookEmpty            = newDex(6009, "OrderBookEmpty", "The order book is empty.", ClassState)
	ErrInvalidMakerAccount       = newDex(6010, "InvalidMakerAccount", "Maker account does not match.", ClassValidation)
	ErrPaused                    = newDex(6011, "Paused", "Market is paused.", ClassState)
	ErrInvalidTickSize           = newDex(6012, "InvalidTickSize", "Price is not a multiple of the tick size.", ClassValidation)
	ErrInvalidLotSize            = newDex(6013, "InvalidLotSize", "Quantity is not a multiple of the base lot size.", ClassValidation)
	ErrBelowMinBaseQty           = newDex(6014, "BelowMinBaseQty", "Quantity is below the minimum base quantity.", ClassValidation)
	ErrBelowMinNotional          = newDex(6015, "BelowMinNotional", "Order value is below the minimum notional.", ClassValidation)
	ErrInvalidMint               = newDex(6016, "InvalidMint", "Invalid mint.", ClassValidation)
	ErrInvalidVault              = newDex(6017, "InvalidVault", "Invalid vault.", ClassValidation)
	ErrInvalidMarketParams       = newDex(6018, "InvalidMarketParams", "Invalid market parameters.", ClassValidation)
	ErrOpenOrdersFull            = newDex(6019, "OpenOrdersFull", "Open orders account is full.", ClassCapacity)
	ErrOrderNotFoundInOpenOrders = newDex(6020, "OrderNotFoundInOpenOrders", "Order not found in open orders account.", ClassLookup)
	ErrOpenOrdersNotEmpty        = newDex(6021, "OpenOrdersAccountNotEmpty", "Open orders account is not empty.", ClassState)

	ErrOpenOrdersNotFound       = newDex(6100, "OpenOrdersNotFound", "Open orders account not found.", ClassLookup)
	ErrMarketNotInitialized     = newDex(6101, "MarketNotInitialized", "Market is not initialized.", ClassLookup)
	ErrMarketAlreadyInitialized = newDex(6102, "MarketAlreadyInitialized", "Market is already initialized.", ClassState)

	ErrInsufficientFunds = newDex(6200, "InsufficientFunds", "Insufficient funds.", ClassLedger)
	ErrLedgerUnavailable = newDex(6201, "LedgerUnavailable", "Token ledger is unavailable.", ClassLedger)
)

// FromCode 根据错误码找回预定义错误（WAL / 事件里只存 code）
func FromCode(code int) (*CodeError, bool) {
	e, ok := byCode[code]
	return e, ok
}

// As 取出链上第一个 CodeError
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ClassOf 非 CodeError 一律算 internal
func ClassOf(err error) Class {
	if ce, ok := As(err); ok {
		return ce.Class
	}
	return ClassInternal
}

func MapErrMsg(code int) string {
	if e, ok := byCode[code]; ok {
		return e.Msg
	}
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case DbError:
		return "数据库繁忙"
	case RecordNotFound:
		return "记录不存在"
	default:
		return "未知错误"
	}
}
