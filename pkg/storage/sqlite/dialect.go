// Package sqlite 运行历史存储的SQLite方言（默认后端）
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stevelan1995/forgebuild/pkg/storage"
)

// Dialect SQLite方言实现（对外导出）
type Dialect struct{}

// NewDialect 创建SQLite方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string {
	return "sqlite"
}

func (d *Dialect) DriverName() string {
	return "sqlite3"
}

// UpsertSQL SQLite 3.24+支持ON CONFLICT，直接使用
func (d *Dialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL DDL本身就是SQLite风格，原样返回
func (d *Dialect) CreateTableSQL(schema string) string {
	return schema
}

// ConfigureDB WAL模式 + 较长的busy超时，容忍并发写入
func (d *Dialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
}

// Open 打开SQLite后端的运行历史仓储（对外导出）
func Open(dsn string) (*storage.RunRepo, error) {
	return storage.OpenRunRepo(NewDialect(), dsn)
}

var _ storage.Dialect = (*Dialect)(nil)
