package position

import (
	"errors"
	"fmt"
)

// ErrNotFound：查询执行成功但没有匹配行；属于可预期结果，由请求层映射为 404
var ErrNotFound = errors.New("no position found")

// ValidationError：字段越界或结构不合法
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid record: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTimestampFormatError：时间戳无法按 TimestampLayout 解析
// 背景：最常见的调用方错误，单独成类以便给出明确提示
type InvalidTimestampFormatError struct {
	Value string
}

func (e *InvalidTimestampFormatError) Error() string {
	return fmt.Sprintf("timestamp %q must be in the format YYYY-MM-DDTHH:MM:SS", e.Value)
}

// IsClientError：是否为调用方输入问题（校验失败或时间戳格式错误）
func IsClientError(err error) bool {
	var ve *ValidationError
	var te *InvalidTimestampFormatError
	return errors.As(err, &ve) || errors.As(err, &te)
}
