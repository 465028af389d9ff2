package janitor

import "errors"

// 预定义错误.
var (
	// ErrJobNameEmpty 任务名称为空.
	ErrJobNameEmpty = errors.New("janitor: 任务名称不能为空")

	// ErrScheduleEmpty 调度表达式为空.
	ErrScheduleEmpty = errors.New("janitor: 调度表达式不能为空")

	// ErrRunNil 任务函数为空.
	ErrRunNil = errors.New("janitor: 任务函数不能为空")

	// ErrScheduleInvalid 无效的调度表达式.
	ErrScheduleInvalid = errors.New("janitor: 无效的调度表达式")

	// ErrJobExists 任务已存在.
	ErrJobExists = errors.New("janitor: 任务已存在")

	// ErrJobNotFound 任务未找到.
	ErrJobNotFound = errors.New("janitor: 任务未找到")

	// ErrJobSkipped 上一次执行尚未结束.
	ErrJobSkipped = errors.New("janitor: 上一次执行尚未结束，本次跳过")

	// ErrClosed 清理器已关闭.
	ErrClosed = errors.New("janitor: 已关闭")
)
