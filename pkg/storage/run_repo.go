package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stevelan1995/forgebuild/pkg/storage/dao"
)

// 运行类型
const (
	RunKindBuild = "build"
	RunKindTest  = "test"
)

// 运行状态
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// Run 一次构建或测试运行的聚合根（对外导出）
type Run struct {
	ID            string
	Kind          string
	Status        string
	StartTime     time.Time
	EndTime       time.Time // 零值表示尚未结束
	ErrorMessage  string
	ModuleResults []ModuleResult
	TestResults   []TestResult
}

// ModuleResult 单个模块的构建结果（对外导出）
type ModuleResult struct {
	ID      string
	Module  string
	Success bool
	Log     string
	Elapsed time.Duration
}

// TestResult 单个测试的结果（对外导出）
type TestResult struct {
	ID      string
	Suite   string
	Name    string
	Config  string
	Outcome string
	Detail  string
}

// RunRepository 运行历史仓储契约（对外导出）
type RunRepository interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns 按开始时间倒序返回运行摘要（不含子结果）
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// RunRepo RunRepository的sqlx实现（对外导出）
// 方言差异全部收敛在Dialect里，三种数据库共用同一份仓储逻辑
type RunRepo struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewRunRepo 创建仓储并初始化表结构（对外导出）
func NewRunRepo(db *sqlx.DB, dialect Dialect) (*RunRepo, error) {
	repo := &RunRepo{db: db, dialect: dialect}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("configure %s: %w", dialect.Name(), err)
		}
	}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return repo, nil
}

// OpenRunRepo 通过DSN创建仓储（对外导出）
func OpenRunRepo(dialect Dialect, dsn string) (*RunRepo, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}
	repo, err := NewRunRepo(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// DB 底层数据库连接，供连接池调优（对外导出）
func (r *RunRepo) DB() *sqlx.DB {
	return r.db
}

// Close 关闭底层连接（对外导出）
func (r *RunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 以SQLite风格书写DDL，交由方言转换
func (r *RunRepo) initSchema() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS build_run (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			error_message TEXT DEFAULT '',
			create_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS module_result (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			module TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 0,
			log TEXT DEFAULT '',
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES build_run(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_module_result_run_id ON module_result(run_id);`,
		`CREATE TABLE IF NOT EXISTS test_result (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			suite TEXT NOT NULL,
			name TEXT NOT NULL,
			config TEXT DEFAULT '',
			outcome TEXT NOT NULL,
			detail TEXT DEFAULT '',
			FOREIGN KEY (run_id) REFERENCES build_run(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_test_result_run_id ON test_result(run_id);`,
	}
	for _, schema := range schemas {
		stmt := r.dialect.CreateTableSQL(schema)
		// 方言可以返回空串表示该语句不适用（如MySQL丢弃索引语句）
		if stmt == "" {
			continue
		}
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun 保存运行及其全部子结果（事务）（对外导出）
// 子结果整体覆盖：先删后插，保证重复保存幂等
func (r *RunRepo) SaveRun(ctx context.Context, run *Run) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	runDAO := &dao.RunDAO{
		ID:           run.ID,
		Kind:         run.Kind,
		Status:       run.Status,
		StartTime:    run.StartTime,
		ErrorMessage: run.ErrorMessage,
		CreateTime:   time.Now(),
	}
	if !run.EndTime.IsZero() {
		runDAO.EndTime = sql.NullTime{Time: run.EndTime, Valid: true}
	}

	upsert := r.dialect.UpsertSQL("build_run",
		[]string{"id", "kind", "status", "start_time", "end_time", "error_message", "create_time"},
		"id",
		[]string{"kind", "status", "start_time", "end_time", "error_message"})
	if _, err := tx.NamedExecContext(ctx, upsert, runDAO); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	for _, table := range []string{"module_result", "test_result"} {
		del := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table))
		if _, err := tx.ExecContext(ctx, del, run.ID); err != nil {
			return fmt.Errorf("clear %s for run %s: %w", table, run.ID, err)
		}
	}

	insertModule := `INSERT INTO module_result (id, run_id, module, success, log, elapsed_ms)
		VALUES (:id, :run_id, :module, :success, :log, :elapsed_ms)`
	for _, m := range run.ModuleResults {
		row := &dao.ModuleResultDAO{
			ID:        m.ID,
			RunID:     run.ID,
			Module:    m.Module,
			Success:   m.Success,
			Log:       m.Log,
			ElapsedMS: m.Elapsed.Milliseconds(),
		}
		if _, err := tx.NamedExecContext(ctx, insertModule, row); err != nil {
			return fmt.Errorf("save module result %s: %w", m.Module, err)
		}
	}

	insertTest := `INSERT INTO test_result (id, run_id, suite, name, config, outcome, detail)
		VALUES (:id, :run_id, :suite, :name, :config, :outcome, :detail)`
	for _, t := range run.TestResults {
		row := &dao.TestResultDAO{
			ID:      t.ID,
			RunID:   run.ID,
			Suite:   t.Suite,
			Name:    t.Name,
			Config:  t.Config,
			Outcome: t.Outcome,
			Detail:  t.Detail,
		}
		if _, err := tx.NamedExecContext(ctx, insertTest, row); err != nil {
			return fmt.Errorf("save test result %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun 读取运行及其全部子结果（对外导出）
func (r *RunRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	var runDAO dao.RunDAO
	query := r.db.Rebind(`SELECT * FROM build_run WHERE id = ?`)
	if err := r.db.GetContext(ctx, &runDAO, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run := fromRunDAO(&runDAO)

	var moduleDAOs []dao.ModuleResultDAO
	query = r.db.Rebind(`SELECT * FROM module_result WHERE run_id = ? ORDER BY module`)
	if err := r.db.SelectContext(ctx, &moduleDAOs, query, id); err != nil {
		return nil, fmt.Errorf("get module results for %s: %w", id, err)
	}
	for _, m := range moduleDAOs {
		run.ModuleResults = append(run.ModuleResults, ModuleResult{
			ID:      m.ID,
			Module:  m.Module,
			Success: m.Success,
			Log:     m.Log,
			Elapsed: time.Duration(m.ElapsedMS) * time.Millisecond,
		})
	}

	var testDAOs []dao.TestResultDAO
	query = r.db.Rebind(`SELECT * FROM test_result WHERE run_id = ? ORDER BY suite, name`)
	if err := r.db.SelectContext(ctx, &testDAOs, query, id); err != nil {
		return nil, fmt.Errorf("get test results for %s: %w", id, err)
	}
	for _, t := range testDAOs {
		run.TestResults = append(run.TestResults, TestResult{
			ID:      t.ID,
			Suite:   t.Suite,
			Name:    t.Name,
			Config:  t.Config,
			Outcome: t.Outcome,
			Detail:  t.Detail,
		})
	}
	return run, nil
}

// ListRuns 按开始时间倒序返回运行摘要（对外导出）
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runDAOs []dao.RunDAO
	query := r.db.Rebind(`SELECT * FROM build_run ORDER BY start_time DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &runDAOs, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]*Run, 0, len(runDAOs))
	for i := range runDAOs {
		runs = append(runs, fromRunDAO(&runDAOs[i]))
	}
	return runs, nil
}

// DeleteRun 删除运行及其子结果（对外导出）
func (r *RunRepo) DeleteRun(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// 外键CASCADE并非所有配置下都启用，显式删除子结果
	for _, table := range []string{"module_result", "test_result"} {
		del := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table))
		if _, err := tx.ExecContext(ctx, del, id); err != nil {
			return fmt.Errorf("delete %s for run %s: %w", table, id, err)
		}
	}
	del := tx.Rebind(`DELETE FROM build_run WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, del, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return tx.Commit()
}

func fromRunDAO(d *dao.RunDAO) *Run {
	run := &Run{
		ID:           d.ID,
		Kind:         d.Kind,
		Status:       d.Status,
		StartTime:    d.StartTime,
		ErrorMessage: d.ErrorMessage,
	}
	if d.EndTime.Valid {
		run.EndTime = d.EndTime.Time
	}
	return run
}

var _ RunRepository = (*RunRepo)(nil)
