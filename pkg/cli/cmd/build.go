package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/cli/output"
	"github.com/stevelan1995/forgebuild/pkg/config"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
)

var (
	buildWorkers int
	buildSkip    []string
	buildDryRun  bool
	buildSerial  bool
)

// buildCmd 执行一轮构建
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "按依赖顺序并行构建全部模块",
	Long: `解析模块依赖图后并行构建：每个模块在其全部依赖完成后入队，
任何一个模块失败立即中止整轮构建。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if buildWorkers > 0 {
			cfg.Forgebuild.Build.Workers = buildWorkers
		}
		if len(buildSkip) > 0 {
			cfg.Forgebuild.Build.SkipModules = append(cfg.Forgebuild.Build.SkipModules, buildSkip...)
		}
		if buildSerial {
			cfg.Forgebuild.Build.Serial = true
		}

		eng, err := engine.New(cfg)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		if buildDryRun {
			levels, err := eng.PlanLevels()
			if err != nil {
				output.Error("构建计划不可行: %v", err)
				return err
			}
			if outputJSON {
				return output.PrintJSON(map[string]any{"levels": levels})
			}
			for i, level := range levels {
				output.Info("level %d: %v", i, level)
			}
			return nil
		}

		run, buildErr := eng.BuildOnce(context.Background())

		if outputJSON {
			return output.PrintJSON(run)
		}

		table := output.NewTable([]string{"MODULE", "RESULT", "ELAPSED"})
		for _, m := range run.ModuleResults {
			result := "OK"
			if !m.Success {
				result = "FAILED"
			}
			table.AddRow(m.Module, result, m.Elapsed.String())
		}
		table.Render()

		if buildErr != nil {
			output.Error("构建失败: %v", buildErr)
			return buildErr
		}
		output.Success("构建完成: %s (%d个模块)", run.ID, len(run.ModuleResults))
		return nil
	},
}

func init() {
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 0, "并行Worker数 (默认CPU核数)")
	buildCmd.Flags().StringSliceVar(&buildSkip, "skip", nil, "跳过构建的模块 (视为已预构建)")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "只输出构建计划，不执行")
	buildCmd.Flags().BoolVar(&buildSerial, "serial", false, "同步逐个执行任务，排查并发问题用")
}
