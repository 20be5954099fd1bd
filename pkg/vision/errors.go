package vision

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	// ErrInputReadFailure 图像缺失、损坏或尺寸不合法，仅影响当前图像对
	ErrInputReadFailure ErrorKind = "input_read_failure"
	// ErrNoDescriptors 任一图像没有可用的描述子
	ErrNoDescriptors ErrorKind = "no_descriptors"
	// ErrInsufficientMatches 通过比率检验的匹配不足
	ErrInsufficientMatches ErrorKind = "insufficient_matches"
	// ErrHomographyDegenerate 无法得到一致的单应性矩阵或内点不足
	ErrHomographyDegenerate ErrorKind = "homography_degenerate"
	// ErrInvalidConfiguration 配置非法，整个任务在开始前终止
	ErrInvalidConfiguration ErrorKind = "invalid_configuration"
)

// Error 带分类的错误
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf 返回错误链中第一个 *Error 的分类，不存在时返回空字符串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func inputError(message string, cause error) error {
	return &Error{Kind: ErrInputReadFailure, Message: message, Cause: cause}
}
