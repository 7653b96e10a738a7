package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/cli/output"
	"github.com/stevelan1995/forgebuild/pkg/report/html"
)

var (
	reportLimit    int
	reportHTMLPath string
)

// reportCmd 运行历史子命令
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "查看构建/测试运行历史",
}

// reportListCmd 列出运行历史
var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出最近的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		runs, err := eng.Repository().ListRuns(context.Background(), reportLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(runs)
		}

		if len(runs) == 0 {
			output.Info("暂无运行记录")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "KIND", "STATUS", "STARTED", "DURATION"})
		for _, run := range runs {
			duration := "-"
			if !run.EndTime.IsZero() {
				duration = run.EndTime.Sub(run.StartTime).Round(time.Second).String()
			}
			table.AddRow(run.ID, run.Kind, run.Status,
				run.StartTime.Format("2006-01-02 15:04:05"), duration)
		}
		table.Render()
		return nil
	},
}

// reportShowCmd 查看单次运行详情
var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "查看单次运行的详细结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		run, err := eng.Repository().GetRun(context.Background(), args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if reportHTMLPath != "" {
			f, err := os.Create(reportHTMLPath)
			if err != nil {
				output.Error("创建报告文件失败: %v", err)
				return err
			}
			defer f.Close()
			if err := html.WriteSummary(f, run); err != nil {
				output.Error("渲染报告失败: %v", err)
				return err
			}
			output.Success("HTML报告已写入: %s", reportHTMLPath)
			return nil
		}

		if outputJSON {
			return output.PrintJSON(run)
		}

		fmt.Printf("Run:     %s\n", run.ID)
		fmt.Printf("Kind:    %s\n", run.Kind)
		fmt.Printf("Status:  %s\n", run.Status)
		fmt.Printf("Started: %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
		if !run.EndTime.IsZero() {
			fmt.Printf("Elapsed: %s\n", run.EndTime.Sub(run.StartTime).Round(time.Second))
		}
		if run.ErrorMessage != "" {
			fmt.Printf("Error:   %s\n", run.ErrorMessage)
		}

		if len(run.ModuleResults) > 0 {
			fmt.Println("\nModules:")
			table := output.NewTable([]string{"MODULE", "RESULT", "ELAPSED"})
			for _, m := range run.ModuleResults {
				result := "OK"
				if !m.Success {
					result = "FAILED"
				}
				table.AddRow(m.Module, result, m.Elapsed.String())
			}
			table.Render()
		}

		if len(run.TestResults) > 0 {
			fmt.Println("\nTests:")
			table := output.NewTable([]string{"SUITE", "TEST", "CONFIG", "OUTCOME"})
			for _, t := range run.TestResults {
				table.AddRow(t.Suite, t.Name, t.Config, t.Outcome)
			}
			table.Render()
		}
		return nil
	},
}

// reportDeleteCmd 删除运行记录
var reportDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "删除运行记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		if err := eng.Repository().DeleteRun(context.Background(), args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("运行记录已删除: %s", args[0])
		return nil
	},
}

func init() {
	reportListCmd.Flags().IntVar(&reportLimit, "limit", 20, "返回记录数量限制")
	reportShowCmd.Flags().StringVar(&reportHTMLPath, "html", "", "把HTML报告写入指定文件")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDeleteCmd)
}
