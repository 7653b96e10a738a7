package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table 等宽列对齐的文本表格
//
// 行在Render时统一测宽，之前可以任意顺序填充；
// 目标Writer可注入，命令层默认写到彩色stdout。
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
}

// NewTable 创建写往stdout的表格（对外导出）
func NewTable(headers []string) *Table {
	return NewTableTo(color.Output, headers)
}

// NewTableTo 创建写往指定Writer的表格（对外导出）
func NewTableTo(out io.Writer, headers []string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow 追加一行（对外导出）
// 多出表头的单元格在渲染时被丢弃，缺少的列留空
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len 当前行数（对外导出）
func (t *Table) Len() int {
	return len(t.rows)
}

// Render 渲染整个表格（对外导出）
func (t *Table) Render() {
	widths := t.columnWidths()
	headerColor := color.New(color.FgCyan, color.Bold)

	for i, h := range t.headers {
		fmt.Fprintf(t.out, "%s  ", headerColor.Sprintf("%-*s", widths[i], h))
	}
	fmt.Fprintln(t.out)

	for _, w := range widths {
		fmt.Fprint(t.out, strings.Repeat("-", w), "  ")
	}
	fmt.Fprintln(t.out)

	for _, row := range t.rows {
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprintf(t.out, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(t.out)
	}
}

// columnWidths 每列取表头与所有单元格的最大宽度
func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}
	return widths
}
