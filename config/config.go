// Package config 提供基于 viper 的配置加载.
//
// 配置文件格式由扩展名识别，环境变量以 GATEKEEPER_ 为前缀覆盖文件中的值，
// 键中的 "." 映射为 "_"（如 GATEKEEPER_RATE_LIMIT_MAX_REQUESTS）.
package config

import (
	"path/filepath"
	"strings"
)

// EnvPrefix 环境变量前缀.
const EnvPrefix = "GATEKEEPER"

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// Defaultable 可填充默认值的配置接口，在 Validate 之前调用.
type Defaultable interface {
	ApplyDefaults()
}

// GetConfigType 根据文件扩展名获取配置类型.
func GetConfigType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
