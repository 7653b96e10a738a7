// Package storage 持久化构建/测试运行历史
package storage

// Dialect 数据库方言（对外导出）
// 运行历史可落在SQLite（默认）、MySQL或PostgreSQL
type Dialect interface {
	// Name 方言名称（"sqlite" / "mysql" / "postgres"）
	Name() string

	// DriverName 注册到database/sql的驱动名
	DriverName() string

	// UpsertSQL 按主键冲突更新的INSERT语句
	// columns为全部列，updateColumns为冲突时需要刷新的列
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 将SQLite风格的DDL转换为本方言兼容的DDL
	CreateTableSQL(schema string) string

	// ConfigureDB 连接建立后需要执行的配置SQL
	ConfigureDB() []string
}
