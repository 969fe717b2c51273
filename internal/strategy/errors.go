package strategy

import (
	"errors"
	"fmt"
)

// ErrConfig 是所有策略配置错误的哨兵。
var ErrConfig = errors.New("invalid strategy config")

// ConfigError 指出具体字段；运行前即返回，不会进入模拟。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("strategy config: %s", e.Reason)
	}
	return fmt.Sprintf("strategy config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
