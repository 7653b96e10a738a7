package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/forgebuild/pkg/config"
	"github.com/stevelan1995/forgebuild/pkg/core/fleet"
	"github.com/stevelan1995/forgebuild/pkg/storage"
	"github.com/stevelan1995/forgebuild/pkg/storage/sqlite"
)

func testRepo(t *testing.T) *storage.RunRepo {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func buildConfig(modules ...config.ModuleConfig) *config.Config {
	cfg := config.Default()
	cfg.Forgebuild.Build.Modules = modules
	return cfg
}

func TestParseExitStatus(t *testing.T) {
	out := "test output line\n" + exitStatusMarker + " 0\n"
	code, output, found := parseExitStatus(out)
	require.True(t, found)
	assert.Equal(t, 0, code)
	assert.Equal(t, "test output line", output)

	code, _, found = parseExitStatus("failed\n" + exitStatusMarker + " 2\n")
	require.True(t, found)
	assert.Equal(t, 2, code)

	// 标记丢失：adb传输层故障
	_, _, found = parseExitStatus("output without marker\n")
	assert.False(t, found)
}

func TestEngine_PlanLevels(t *testing.T) {
	cfg := buildConfig(
		config.ModuleConfig{Name: "base"},
		config.ModuleConfig{Name: "left", Deps: []string{"base"}},
		config.ModuleConfig{Name: "right", Deps: []string{"base"}},
		config.ModuleConfig{Name: "top", Deps: []string{"left", "right"}},
	)
	eng, err := New(cfg, WithRepository(testRepo(t)))
	require.NoError(t, err)
	defer eng.Close()

	levels, err := eng.PlanLevels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"base"}, levels[0])
	assert.Equal(t, []string{"left", "right"}, levels[1])
	assert.Equal(t, []string{"top"}, levels[2])
}

func TestEngine_BuildOnce(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "built")
	cfg := buildConfig(
		config.ModuleConfig{Name: "first", BuildCmd: "true"},
		config.ModuleConfig{Name: "second", Deps: []string{"first"}, BuildCmd: "touch " + marker},
	)
	repo := testRepo(t)
	eng, err := New(cfg, WithRepository(repo))
	require.NoError(t, err)
	defer eng.Close()

	run, err := eng.BuildOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusSucceeded, run.Status)
	assert.Len(t, run.ModuleResults, 2)
	assert.FileExists(t, marker)

	// 运行记录已落库
	loaded, err := repo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusSucceeded, loaded.Status)
	assert.Len(t, loaded.ModuleResults, 2)
}

func TestEngine_BuildOnce_SerialQueue(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "built_serial")
	cfg := buildConfig(
		config.ModuleConfig{Name: "first", BuildCmd: "true"},
		config.ModuleConfig{Name: "second", Deps: []string{"first"}, BuildCmd: "touch " + marker},
	)
	cfg.Forgebuild.Build.Serial = true
	eng, err := New(cfg, WithRepository(testRepo(t)))
	require.NoError(t, err)
	defer eng.Close()

	run, err := eng.BuildOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusSucceeded, run.Status)
	assert.FileExists(t, marker)
}

func TestEngine_BuildOnce_HeavyModule(t *testing.T) {
	cfg := buildConfig(
		config.ModuleConfig{Name: "tiny", BuildCmd: "true"},
		config.ModuleConfig{Name: "huge", BuildCmd: "true", Heavy: true},
	)
	eng, err := New(cfg, WithRepository(testRepo(t)))
	require.NoError(t, err)
	defer eng.Close()

	run, err := eng.BuildOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusSucceeded, run.Status)
	assert.Len(t, run.ModuleResults, 2)
}

func TestEngine_BuildOnce_FailureRecorded(t *testing.T) {
	cfg := buildConfig(
		config.ModuleConfig{Name: "broken", BuildCmd: "exit 1"},
		config.ModuleConfig{Name: "dependent", Deps: []string{"broken"}, BuildCmd: "true"},
	)
	repo := testRepo(t)
	eng, err := New(cfg, WithRepository(repo))
	require.NoError(t, err)
	defer eng.Close()

	run, err := eng.BuildOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, storage.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "broken")

	loaded, err := repo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFailed, loaded.Status)
}

// stubAdb 单设备测试环境：getprop探测 + shell用例 + 日志收集
func stubAdb(t *testing.T) fleet.AdbRunner {
	props := "[ro.build.version.sdk]: [30]\n" +
		"[ro.product.cpu.abilist]: [arm64-v8a]\n" +
		"[ro.product.name]: [flame]\n" +
		"[ro.build.id]: [RQ1A]\n" +
		"[ro.build.version.codename]: [REL]\n" +
		"[ro.debuggable]: [0]\n"
	return func(args ...string) (string, error) {
		if args[0] == "devices" {
			return "List of devices attached\ndev1\tdevice\n", nil
		}
		if args[0] != "-s" {
			return "", fmt.Errorf("unexpected adb args: %v", args)
		}
		switch args[2] {
		case "logcat":
			if args[3] == "-c" {
				return "", nil
			}
			return "stub device log", nil
		case "shell":
			cmd := args[3]
			if cmd == "getprop" {
				return props, nil
			}
			if strings.HasPrefix(cmd, "rm -rf "+deviceTestDir) {
				return "", nil
			}
			if strings.HasPrefix(cmd, "/data/local/tmp/pass") {
				return "all good\n" + exitStatusMarker + " 0\n", nil
			}
			if strings.HasPrefix(cmd, "/data/local/tmp/fail") {
				return "assert tripped\n" + exitStatusMarker + " 1\n", nil
			}
		}
		return "", fmt.Errorf("unexpected adb args: %v", args)
	}
}

func TestEngine_RunTests(t *testing.T) {
	cfg := config.Default()
	cfg.Forgebuild.Test.Configurations = map[int][]string{30: {"arm64-v8a"}}
	cfg.Forgebuild.Test.Cases = []config.TestCaseConfig{
		{Name: "pass_case", Suite: "libc", API: 21, Abi: "arm64-v8a", Command: "/data/local/tmp/pass"},
		{Name: "fail_case", Suite: "libc", API: 21, Abi: "arm64-v8a", Command: "/data/local/tmp/fail"},
	}
	repo := testRepo(t)
	eng, err := New(cfg, WithRepository(repo), WithAdbRunner(stubAdb(t)))
	require.NoError(t, err)
	defer eng.Close()

	run, err := eng.RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFailed, run.Status)
	require.Len(t, run.TestResults, 2)

	byName := make(map[string]storage.TestResult)
	for _, tr := range run.TestResults {
		byName[tr.Name] = tr
	}
	assert.Equal(t, OutcomePass, byName["pass_case"].Outcome)
	assert.Equal(t, OutcomeFail, byName["fail_case"].Outcome)
	// 失败详情带上了采集到的设备日志
	assert.Contains(t, byName["fail_case"].Detail, "assert tripped")
	assert.Contains(t, byName["fail_case"].Detail, "stub device log")
	assert.Equal(t, "arm64-v8a-21", byName["pass_case"].Config)

	loaded, err := repo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.TestResults, 2)
}
