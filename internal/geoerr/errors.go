// 包 geoerr：统一错误分类（校验失败、数据损坏、存储不可用），未命中不属于错误
package geoerr

import (
	"errors"
	"fmt"
)

// ErrNotFound：仅供展示层（HTTP/CLI）表达未命中
// 约束：核心查询以 bool 返回未命中，不返回该错误
var ErrNotFound = errors.New("not found")

// ValidationError：写入前或编码时的参数校验失败，发生时不会有任何写入
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Invalid：构造 ValidationError 的快捷方式
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CorruptEntryError：已存储的分值或成员串无法解析
type CorruptEntryError struct {
	Key   string
	Value string
	Err   error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt entry in %s: %q: %v", e.Key, e.Value, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }

// StoreUnavailableError：Redis 传输或命令失败，原样向上传递，不做重试
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable：包装存储错误；nil 透传
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsCorrupt(err error) bool {
	var c *CorruptEntryError
	return errors.As(err, &c)
}

func IsUnavailable(err error) bool {
	var u *StoreUnavailableError
	return errors.As(err, &u)
}
