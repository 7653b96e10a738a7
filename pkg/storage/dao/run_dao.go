// Package dao 运行历史的数据库行结构
package dao

import (
	"database/sql"
	"time"
)

// RunDAO build_run表的行结构（对外导出）
type RunDAO struct {
	ID           string       `db:"id"`
	Kind         string       `db:"kind"`
	Status       string       `db:"status"`
	StartTime    time.Time    `db:"start_time"`
	EndTime      sql.NullTime `db:"end_time"`
	ErrorMessage string       `db:"error_message"`
	CreateTime   time.Time    `db:"create_time"`
}

// ModuleResultDAO module_result表的行结构（对外导出）
type ModuleResultDAO struct {
	ID        string `db:"id"`
	RunID     string `db:"run_id"`
	Module    string `db:"module"`
	Success   bool   `db:"success"`
	Log       string `db:"log"`
	ElapsedMS int64  `db:"elapsed_ms"`
}

// TestResultDAO test_result表的行结构（对外导出）
type TestResultDAO struct {
	ID      string `db:"id"`
	RunID   string `db:"run_id"`
	Suite   string `db:"suite"`
	Name    string `db:"name"`
	Config  string `db:"config"`
	Outcome string `db:"outcome"`
	Detail  string `db:"detail"`
}
