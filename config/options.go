package config

// Option 加载选项.
type Option func(*options)

type options struct {
	env      bool
	defaults map[string]any
}

// WithoutEnv 只读配置文件，不应用 GATEKEEPER_ 环境变量覆盖.
func WithoutEnv() Option {
	return func(o *options) {
		o.env = false
	}
}

// WithDefaults 设置默认值，键为点分路径（如 "rate_limit.store"）.
//
// viper 只为已知键读取环境变量，文件中未出现的键需在此声明才能由环境变量设置.
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		o.defaults = defaults
	}
}
