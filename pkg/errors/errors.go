package errors

import "errors"

// Error 业务错误
type Error struct {
	Code     int    `json:"code"`    // 错误码
	Reason   string `json:"reason"`  // 机器可读的错误原因
	Message  string `json:"message"` // 错误信息
	HttpCode int    `json:"-"`       // http状态码
	Err      error  `json:"-"`       // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新的错误
// code 错误码
// reason 错误原因（小写下划线，写入协议帧的 code 字段）
// message 错误信息
// httpCode 可选http状态码，默认200
func New(code int, reason, message string, httpCode ...int) *Error {
	hc := 200
	if len(httpCode) > 0 {
		hc = httpCode[0]
	}
	return &Error{
		Code:     code,
		Reason:   reason,
		HttpCode: hc,
		Message:  message,
	}
}

// Clone 克隆错误（避免修改共享的预定义错误）
func (e *Error) Clone() *Error {
	cp := *e
	return &cp
}

// WithError 添加原始错误（返回新实例，不修改原错误）
func (e *Error) WithError(err error) *Error {
	cp := e.Clone()
	cp.Err = err
	return cp
}

// WithMessage 替换错误信息（返回新实例，不修改原错误）
func (e *Error) WithMessage(message string) *Error {
	cp := e.Clone()
	cp.Message = message
	return cp
}

// Is 检查错误是否为指定类型
// 当 target 也是 *Error 时，比较 Code 是否相同
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// As 转换为指定类型的错误
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 检查错误是否为指定类型
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// From 提取 *Error，非业务错误返回 ErrServer 包装
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrServer.WithError(err)
}

/*
	内置通用错误码
*/
var (
	// ErrServer 服务器错误
	ErrServer = New(1000, "internal", "internal server error", 500)
	// ErrBadRequest 客户端请求错误
	ErrBadRequest = New(1001, "bad_request", "bad request", 400)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, "not_found", "resource not found", 404)
	// ErrUnavailable 功能未启用
	ErrUnavailable = New(1005, "unavailable", "feature not enabled", 503)
	// ErrTooManyRequests 触发限流
	ErrTooManyRequests = New(1029, "too_many_requests", "too many requests", 429)
)
