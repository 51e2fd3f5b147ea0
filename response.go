package huddle

import (
	"net/http"

	"github.com/tokmz/huddle/pkg/errors"
)

// Response HTTP 接口统一响应，与信令错误帧共用错误码
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Success 成功响应，业务码与 HTTP 状态一致
func Success(data any) *Response {
	return &Response{Code: http.StatusOK, Data: data, Message: "success"}
}

// Fail 失败响应
func Fail(code int, message string) *Response {
	return &Response{Code: code, Message: message}
}

// ErrorResponse 按错误码生成响应，返回应使用的 HTTP 状态；未知错误视为 ErrServer
func ErrorResponse(err error) (int, *Response) {
	e := errors.From(err)
	if e == nil {
		e = errors.ErrServer
	}
	status := e.HttpCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, &Response{Code: e.Code, Message: e.Message}
}

func (r *Response) traced(traceID string) *Response {
	if traceID != "" {
		r.TraceID = traceID
	}
	return r
}
