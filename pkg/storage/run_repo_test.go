package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/forgebuild/pkg/storage"
	"github.com/stevelan1995/forgebuild/pkg/storage/sqlite"
)

func newTestRepo(t *testing.T) *storage.RunRepo {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "forgebuild_test.db")
	repo, err := sqlite.Open(dsn)
	require.NoError(t, err, "打开测试数据库失败")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRun() *storage.Run {
	return &storage.Run{
		ID:        uuid.NewString(),
		Kind:      storage.RunKindBuild,
		Status:    storage.RunStatusSucceeded,
		StartTime: time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
		EndTime:   time.Now().UTC().Truncate(time.Second),
		ModuleResults: []storage.ModuleResult{
			{ID: uuid.NewString(), Module: "toolchain", Success: true, Elapsed: 42 * time.Second},
			{ID: uuid.NewString(), Module: "sysroot", Success: true, Elapsed: 3 * time.Second},
		},
		TestResults: []storage.TestResult{
			{ID: uuid.NewString(), Suite: "libc", Name: "test_malloc", Config: "arm64-v8a-21", Outcome: "PASS"},
		},
	}
}

func TestRunRepo_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, run))

	loaded, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Kind, loaded.Kind)
	assert.Equal(t, run.Status, loaded.Status)
	require.Len(t, loaded.ModuleResults, 2)
	// 子结果按模块名排序返回
	assert.Equal(t, "sysroot", loaded.ModuleResults[0].Module)
	assert.Equal(t, 42*time.Second, loaded.ModuleResults[1].Elapsed)
	require.Len(t, loaded.TestResults, 1)
	assert.Equal(t, "PASS", loaded.TestResults[0].Outcome)
}

func TestRunRepo_SaveIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, run))

	// 状态推进后重复保存：行更新而不是累积
	run.Status = storage.RunStatusFailed
	run.ErrorMessage = "toolchain failed"
	run.ModuleResults = run.ModuleResults[:1]
	require.NoError(t, repo.SaveRun(ctx, run))

	loaded, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFailed, loaded.Status)
	assert.Equal(t, "toolchain failed", loaded.ErrorMessage)
	assert.Len(t, loaded.ModuleResults, 1)
}

func TestRunRepo_GetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunRepo_ListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := sampleRun()
	older.StartTime = time.Now().Add(-2 * time.Hour).UTC()
	newer := sampleRun()
	newer.StartTime = time.Now().UTC()
	require.NoError(t, repo.SaveRun(ctx, older))
	require.NoError(t, repo.SaveRun(ctx, newer))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunRepo_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, run))
	require.NoError(t, repo.DeleteRun(ctx, run.ID))

	_, err := repo.GetRun(ctx, run.ID)
	assert.Error(t, err)
}
