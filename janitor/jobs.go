package janitor

import (
	"context"
	"time"

	"github.com/Tsukikage7/gatekeeper/auth/rbac"
	"github.com/Tsukikage7/gatekeeper/ratelimit"
)

// 内置任务名称.
const (
	JobDecisionSweep = "rbac-decision-sweep"
	JobLedgerSweep   = "ratelimit-ledger-sweep"
)

// EveryMinute 每分钟第 0 秒执行.
const EveryMinute = "0 * * * * *"

// Config 清理任务调度配置.
type Config struct {
	// DecisionSweep 决策缓存清理的 Cron 表达式.
	DecisionSweep string `json:"decision_sweep" yaml:"decision_sweep" mapstructure:"decision_sweep"`

	// LedgerSweep 限流台账清理的 Cron 表达式.
	LedgerSweep string `json:"ledger_sweep" yaml:"ledger_sweep" mapstructure:"ledger_sweep"`
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.DecisionSweep == "" {
		c.DecisionSweep = EveryMinute
	}
	if c.LedgerSweep == "" {
		c.LedgerSweep = EveryMinute
	}
}

// DecisionSweep 清理过期的权限决策缓存条目.
func DecisionSweep(manager *rbac.Manager, schedule string) *Job {
	return &Job{
		Name:     JobDecisionSweep,
		Schedule: schedule,
		Run: func(context.Context) (int, error) {
			return manager.SweepDecisions(), nil
		},
	}
}

// LedgerSweep 清理过期的限流窗口、可疑记录与封禁.
func LedgerSweep(ledger ratelimit.Ledger, window time.Duration, schedule string) *Job {
	return &Job{
		Name:     JobLedgerSweep,
		Schedule: schedule,
		Run: func(ctx context.Context) (int, error) {
			return ledger.Sweep(ctx, time.Now(), window)
		},
	}
}
