package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/cli/output"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
	"github.com/stevelan1995/forgebuild/pkg/storage"
)

// testCmd 在设备上执行全部测试
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "发现已连接设备并执行全部测试用例",
	Long: `探测全部已连接设备，按设备等价类分片后把用例调度到兼容的
设备组上并行执行。疑似环境抖动的失败自动冷却重试一次。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		run, err := eng.RunTests(context.Background())
		if err != nil {
			output.Error("测试执行失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(run)
		}

		table := output.NewTable([]string{"SUITE", "TEST", "CONFIG", "OUTCOME"})
		failed := 0
		for _, t := range run.TestResults {
			if t.Outcome == engine.OutcomeFail || t.Outcome == engine.OutcomeShouldFail {
				failed++
			}
			table.AddRow(t.Suite, t.Name, t.Config, t.Outcome)
		}
		table.Render()

		if run.Status != storage.RunStatusSucceeded {
			output.Error("测试未通过: %s", run.ErrorMessage)
			return fmt.Errorf("%d tests failed", failed)
		}
		output.Success("全部测试通过: %s (%d个结果)", run.ID, len(run.TestResults))
		return nil
	},
}
