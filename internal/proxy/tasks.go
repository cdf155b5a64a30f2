package proxy

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// taskGroup 运行响应返回后仍需完成的后台任务。任务使用脱离请求生命周期的 context，
// 失败与 panic 只记录日志。
type taskGroup struct {
	wg     conc.WaitGroup
	logger *logrus.Logger
}

func (g *taskGroup) Go(parent context.Context, name string, fn func(context.Context) error) {
	ctx := context.WithoutCancel(parent)
	g.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(logrus.Fields{
					"action": "background_task",
					"task":   name,
					"stack":  string(debug.Stack()),
				}).Error(fmt.Sprintf("后台任务异常: %v", r))
			}
		}()
		if err := fn(ctx); err != nil {
			g.logger.WithFields(logrus.Fields{
				"action": "background_task",
				"task":   name,
			}).WithError(err).Warn("后台任务失败")
		}
	})
}

// Wait 等待所有已提交的后台任务结束。
func (g *taskGroup) Wait() {
	g.wg.Wait()
}
