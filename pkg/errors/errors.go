package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"

	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeTransport       ErrorCode = "TRANSPORT"
	CodeProvider        ErrorCode = "PROVIDER"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewAlreadyExistsError 创建已存在错误
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: message,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// NewInternalErrorWithCause 创建带原因的内部错误
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     cause,
	}
}

// NewRateLimitedError 创建限流错误
func NewRateLimitedError(message string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: message}
}

// NewPolicyViolationError 创建策略违规错误 (路径逃逸/域名拦截/协议不允许)
func NewPolicyViolationError(message string) *AppError {
	return &AppError{Code: CodePolicyViolation, Message: message}
}

// NewTimeoutError 创建超时错误 (串口/插件/HTTP)
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{Code: CodeTimeout, Message: message, Err: cause}
}

// NewTransportError 创建传输层错误 (I/O、断连、协议损坏)
func NewTransportError(message string, cause error) *AppError {
	return &AppError{Code: CodeTransport, Message: message, Err: cause}
}

// NewProviderError 创建 LLM 提供方错误 (对外暴露前必须先脱敏)
func NewProviderError(message string, cause error) *AppError {
	return &AppError{Code: CodeProvider, Message: message, Err: cause}
}

// CodeOf 提取错误码, 非 AppError 归为 INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}
