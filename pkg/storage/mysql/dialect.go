// Package mysql 运行历史存储的MySQL方言
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/stevelan1995/forgebuild/pkg/storage"
)

// Dialect MySQL方言实现（对外导出）
type Dialect struct{}

// NewDialect 创建MySQL方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string {
	return "mysql"
}

func (d *Dialect) DriverName() string {
	return "mysql"
}

// UpsertSQL 使用ON DUPLICATE KEY UPDATE
func (d *Dialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 把SQLite风格的DDL转换为MySQL兼容格式
// MySQL的TEXT不能做主键/外键，键列改用定长VARCHAR；
// CREATE INDEX不支持IF NOT EXISTS，索引语句整句丢弃
func (d *Dialect) CreateTableSQL(schema string) string {
	if strings.HasPrefix(strings.TrimSpace(schema), "CREATE INDEX") {
		return ""
	}
	result := schema
	result = strings.ReplaceAll(result, "id TEXT PRIMARY KEY", "id VARCHAR(191) PRIMARY KEY")
	result = strings.ReplaceAll(result, "run_id TEXT NOT NULL", "run_id VARCHAR(191) NOT NULL")
	return result
}

func (d *Dialect) ConfigureDB() []string {
	return nil
}

// Open 打开MySQL后端的运行历史仓储（对外导出）
// DSN需带parseTime=true，否则DATETIME扫不进time.Time
func Open(dsn string) (*storage.RunRepo, error) {
	return storage.OpenRunRepo(NewDialect(), dsn)
}

var _ storage.Dialect = (*Dialect)(nil)
