package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006

	// 游戏规则错误 (2000-2999)
	ErrGameNotFound     ErrorCode = 2000
	ErrPlayerExists     ErrorCode = 2001
	ErrPlayerNotFound   ErrorCode = 2002
	ErrWrongPhase       ErrorCode = 2003
	ErrNoGuesser        ErrorCode = 2004
	ErrNotGuesser       ErrorCode = 2005
	ErrNotEnoughOptions ErrorCode = 2006
	ErrInvalidOption    ErrorCode = 2007
	ErrGameClosed       ErrorCode = 2008

	// 连接错误 (3000-3999)
	ErrAlreadyInGame ErrorCode = 3000
	ErrNotInGame     ErrorCode = 3001
	ErrSessionGone   ErrorCode = 3002

	// 通信错误 (4000-4999)
	ErrWebSocketSend    ErrorCode = 4000
	ErrWebSocketReceive ErrorCode = 4001
	ErrWebSocketClosed  ErrorCode = 4002
	ErrMessageFormat    ErrorCode = 4003

	// 外部服务错误 (5000-5999)
	ErrWikiLookup      ErrorCode = 5000
	ErrWikiPageMissing ErrorCode = 5001

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",

	// 游戏规则错误
	ErrGameNotFound:     "游戏不存在",
	ErrPlayerExists:     "玩家已在游戏中",
	ErrPlayerNotFound:   "玩家不在游戏中",
	ErrWrongPhase:       "当前阶段不允许该操作",
	ErrNoGuesser:        "尚未指定猜题者",
	ErrNotGuesser:       "只有猜题者可以执行该操作",
	ErrNotEnoughOptions: "可选玩家不足",
	ErrInvalidOption:    "猜测目标不在候选列表中",
	ErrGameClosed:       "游戏已关闭",

	// 连接错误
	ErrAlreadyInGame: "已在游戏中，需先离开当前游戏",
	ErrNotInGame:     "当前不在任何游戏中",
	ErrSessionGone:   "连接会话已销毁",

	// 通信错误
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketReceive: "WebSocket接收失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrMessageFormat:    "消息格式错误",

	// 外部服务错误
	ErrWikiLookup:      "词条查询失败",
	ErrWikiPageMissing: "词条不存在",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/wiki-guess/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam || e.Code == ErrMessageFormat || e.Code == ErrInvalidOption:
		return 400 // Bad Request
	case e.Code == ErrNotFound || e.Code == ErrGameNotFound ||
		e.Code == ErrPlayerNotFound || e.Code == ErrWikiPageMissing:
		return 404 // Not Found
	case e.Code == ErrPermissionDenied || e.Code == ErrNotGuesser:
		return 403 // Forbidden
	case e.Code == ErrAlreadyExists || e.Code == ErrPlayerExists ||
		e.Code == ErrAlreadyInGame || e.Code == ErrWrongPhase ||
		e.Code == ErrNotInGame || e.Code == ErrNoGuesser || e.Code == ErrNotEnoughOptions:
		return 409 // Conflict
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code == ErrWikiLookup:
		return 502 // Bad Gateway
	default:
		return 500 // Internal Server Error
	}
}

// IsRuleError 判断是否为规则拒绝类错误（只拒绝本次命令，不影响游戏状态）
func IsRuleError(err error) bool {
	code := GetCode(err)
	return (code >= 2000 && code <= 2999) || (code >= 3000 && code <= 3999)
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
