// Package postgres 运行历史存储的PostgreSQL方言
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/stevelan1995/forgebuild/pkg/storage"
)

// Dialect PostgreSQL方言实现（对外导出）
type Dialect struct{}

// NewDialect 创建PostgreSQL方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string {
	return "postgres"
}

func (d *Dialect) DriverName() string {
	return "postgres"
}

// UpsertSQL 使用ON CONFLICT DO UPDATE
// :name形式的占位符由sqlx的NamedExec统一改写
func (d *Dialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 把SQLite风格的DDL转换为PostgreSQL兼容格式
func (d *Dialect) CreateTableSQL(schema string) string {
	result := schema
	result = strings.ReplaceAll(result, "DATETIME", "TIMESTAMP")
	result = strings.ReplaceAll(result, "INTEGER NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT FALSE")
	// elapsed_ms是数值列，上一步误转后改回
	result = strings.ReplaceAll(result, "elapsed_ms BOOLEAN NOT NULL DEFAULT FALSE", "elapsed_ms BIGINT NOT NULL DEFAULT 0")
	return result
}

func (d *Dialect) ConfigureDB() []string {
	return []string{
		"SET timezone = 'UTC';",
	}
}

// Open 打开PostgreSQL后端的运行历史仓储（对外导出）
func Open(dsn string) (*storage.RunRepo, error) {
	return storage.OpenRunRepo(NewDialect(), dsn)
}

var _ storage.Dialect = (*Dialect)(nil)
