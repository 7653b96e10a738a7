package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Render(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	table := NewTableTo(&buf, []string{"MODULE", "RESULT"})
	table.AddRow("toolchain", "OK")
	table.AddRow("sysroot-with-long-name", "FAILED")
	require.Equal(t, 2, table.Len())
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "MODULE                  RESULT", strings.TrimRight(lines[0], " "))
	assert.Contains(t, lines[1], "------")
	// 列宽取该列最长单元格，短行补齐
	assert.Equal(t, "toolchain               OK", strings.TrimRight(lines[2], " "))
	assert.Equal(t, "sysroot-with-long-name  FAILED", strings.TrimRight(lines[3], " "))
}

func TestTable_ShortRowLeavesBlankCells(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	table := NewTableTo(&buf, []string{"A", "B", "C"})
	table.AddRow("only")
	table.Render()

	assert.Contains(t, buf.String(), "only")
}

func TestPrintJSONTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSONTo(&buf, map[string]int{"levels": 3}))
	assert.Equal(t, "{\n  \"levels\": 3\n}\n", buf.String())
}
