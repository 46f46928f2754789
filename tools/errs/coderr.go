package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	CodeValidation   = 1001
	CodeNotFound     = 1004
	CodeUnauthorized = 1401
	CodeRateLimited  = 1429
	CodeStorage      = 1500
	CodeInternal     = 1501
)

var (
	ErrValidation   = NewCodeError(CodeValidation, "validation error")
	ErrNotFound     = NewCodeError(CodeNotFound, "not found")
	ErrUnauthorized = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrRateLimited  = NewCodeError(CodeRateLimited, "too many requests")
	ErrStorage      = NewCodeError(CodeStorage, "storage error")
	ErrInternal     = NewCodeError(CodeInternal, "server internal error")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	c := e.clone()
	if c.Detail == "" {
		c.Detail = detail
	} else {
		c.Detail += ", " + detail
	}
	return c
}

// Wrap 返回带调用栈的副本，哨兵本身不会被修改。
func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e.clone())
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	c := e.clone()
	if msg != "" || len(kv) > 0 {
		c = c.WithDetail(toString(msg, kv))
	}
	return pkgerrors.WithStack(c)
}

// Cause 把底层错误挂在 CodeError 之下，errors.Is 对两者都成立。
func (e *CodeError) Cause(err error, msg string, kv ...any) error {
	c := e.clone()
	if msg != "" || len(kv) > 0 {
		c = c.WithDetail(toString(msg, kv))
	}
	return pkgerrors.WithStack(&causeError{code: c, cause: err})
}

// Is 按 code 比较，便于 errors.Is(err, errs.ErrStorage)。
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

type causeError struct {
	code  *CodeError
	cause error
}

func (c *causeError) Error() string {
	if c.cause == nil {
		return c.code.Error()
	}
	return c.code.Error() + ": " + c.cause.Error()
}

func (c *causeError) Unwrap() []error { return []error{c.code, c.cause} }

// As 取出链路上的 CodeError。
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

// HTTPStatus maps an error chain to the status the API answers with.
func HTTPStatus(err error) int {
	ce, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ce.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
