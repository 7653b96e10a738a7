package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/cli/output"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
)

// scheduleCmd 以定时模式常驻运行
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按配置的cron表达式定时执行构建+测试",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		scheduler := engine.NewCronScheduler(eng)
		if err := scheduler.Register(); err != nil {
			output.Error("注册定时流水失败: %v", err)
			return err
		}
		scheduler.Start()
		output.Info("定时流水已启动: %s", eng.Config().Forgebuild.Schedule.CronExpr)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在停止，等待在途流水结束...")
		scheduler.Stop()
		return nil
	},
}
