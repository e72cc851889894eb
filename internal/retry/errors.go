package retry

import (
	"context"
	"errors"
	"net"
)

// TransientError 临时错误（限流、超时、5xx），重试可能成功
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

// Transient 将错误标记为可重试
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{err: err}
}

// PermanentError 永久错误（载荷格式错误、引用实体不存在、响应结构不合法），不应重试
type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string { return e.err.Error() }

func (e *PermanentError) Unwrap() error { return e.err }

// Permanent 将错误标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{err: err}
}

// IsTransient 是否为临时错误；超时与网络错误即使未显式标记也视为临时
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsPermanent 是否为永久错误
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
