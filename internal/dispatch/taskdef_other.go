//go:build !windows

package dispatch

import logx "shutdownsched/pkg/logx"

func newTaskDef(log logx.Logger) (Dispatcher, error) {
	_ = log
	return nil, newError(KindUnsupported, "taskdef", "Windows Task Scheduler is only available on windows")
}
