// Package cmd forgebuild命令行入口
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/config"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
)

var (
	// 全局变量
	configPath string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "forgebuild",
	Short: "forgebuild - 依赖驱动的构建与设备测试调度器",
	Long: `forgebuild 按模块依赖图并行构建原生工具链产物，
并把测试用例按兼容性分片调度到已连接的设备上执行。

使用示例：
  # 查看按依赖分层的构建计划
  forgebuild plan

  # 执行一轮完整构建
  forgebuild build

  # 在已连接设备上执行全部测试
  forgebuild test

  # 查看运行历史
  forgebuild report list

  # 启动HTTP服务
  forgebuild serve`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forgebuild.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadEngine 读取配置并装配Engine
func loadEngine() (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return engine.New(cfg)
}
