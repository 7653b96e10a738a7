package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/cli/output"
)

// planCmd 查看构建计划
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "查看按依赖分层的构建计划",
	Long:  `解析模块依赖图，输出各层可以并行构建的模块。不执行任何构建命令。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		levels, err := eng.PlanLevels()
		if err != nil {
			output.Error("构建计划不可行: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(map[string]any{"levels": levels})
		}

		table := output.NewTable([]string{"LEVEL", "MODULES"})
		for i, level := range levels {
			table.AddRow(fmt.Sprintf("%d", i), strings.Join(level, ", "))
		}
		table.Render()
		return nil
	},
}
