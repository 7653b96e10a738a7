// Package output CLI的表格与消息输出
package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/fatih/color"
)

// PrintJSON 缩进JSON写到stdout（对外导出）
func PrintJSON(data any) error {
	return PrintJSONTo(os.Stdout, data)
}

// PrintJSONTo 缩进JSON写到指定Writer（对外导出）
func PrintJSONTo(out io.Writer, data any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息（对外导出）
func Success(format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Printf(format+"\n", args...)
}

// Error 输出错误消息（对外导出）
func Error(format string, args ...any) {
	color.New(color.FgRed, color.Bold).Printf(format+"\n", args...)
}

// Info 输出信息（对外导出）
func Info(format string, args ...any) {
	color.New(color.FgCyan).Printf(format+"\n", args...)
}

// Warning 输出警告（对外导出）
func Warning(format string, args ...any) {
	color.New(color.FgYellow).Printf(format+"\n", args...)
}
