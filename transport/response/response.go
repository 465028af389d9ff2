// Package response 提供网关拒绝请求时的 JSON 响应.
//
// 响应格式：
//
//	{
//	    "error": "Too many requests",
//	    "message": "Rate limit exceeded, please try again later",
//	    "code": "RATE_LIMIT_EXCEEDED",
//	    "retryAfter": 900,
//	    "limit": 100
//	}
package response

import (
	"encoding/json"
	"net/http"
)

// Denial 拒绝响应体.
type Denial struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Code       string   `json:"code"`
	RetryAfter int      `json:"retryAfter,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Required   []string `json:"required,omitempty"`
}

// DenialOption 拒绝响应体附加字段.
type DenialOption func(*Denial)

// WithRetryAfter 设置重试等待秒数.
func WithRetryAfter(seconds int) DenialOption {
	return func(d *Denial) {
		d.RetryAfter = seconds
	}
}

// WithLimit 设置限额.
func WithLimit(limit int) DenialOption {
	return func(d *Denial) {
		d.Limit = limit
	}
}

// WithRequired 设置缺失的必需项.
func WithRequired(required ...string) DenialOption {
	return func(d *Denial) {
		d.Required = required
	}
}

// NewDenial 由错误码创建拒绝响应体.
func NewDenial(code Code, opts ...DenialOption) Denial {
	d := Denial{
		Error:   code.Title,
		Message: code.Message,
		Code:    code.Name,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WriteJSON 写入 JSON 响应.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteDenial 按错误码写入拒绝响应.
func WriteDenial(w http.ResponseWriter, code Code, opts ...DenialOption) error {
	return WriteJSON(w, code.HTTPStatus, NewDenial(code, opts...))
}
