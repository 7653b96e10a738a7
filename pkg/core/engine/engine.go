// Package engine 把配置、构建驱动、测试调度和运行历史装配成一个门面
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevelan1995/forgebuild/pkg/config"
	"github.com/stevelan1995/forgebuild/pkg/core/build"
	"github.com/stevelan1995/forgebuild/pkg/core/deps"
	"github.com/stevelan1995/forgebuild/pkg/core/events"
	"github.com/stevelan1995/forgebuild/pkg/core/fleet"
	"github.com/stevelan1995/forgebuild/pkg/core/plan"
	"github.com/stevelan1995/forgebuild/pkg/core/testrun"
	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
	"github.com/stevelan1995/forgebuild/pkg/storage"
	"github.com/stevelan1995/forgebuild/pkg/storage/mysql"
	"github.com/stevelan1995/forgebuild/pkg/storage/postgres"
	"github.com/stevelan1995/forgebuild/pkg/storage/sqlite"
)

// 测试结果落库时的outcome取值
const (
	OutcomePass       = "PASS"
	OutcomeFail       = "FAIL"
	OutcomeSkip       = "SKIP"
	OutcomeKnownFail  = "KNOWN_FAIL"
	OutcomeShouldFail = "SHOULD_FAIL"
)

// exitStatusMarker adb shell不回传退出码，追加echo自取
// 输出里找不到标记视为传输层故障（可重试的环境抖动）
const exitStatusMarker = "forgebuild_exit_status:"

// deviceTestDir 用例工作目录，每轮测试前整目录重建
const deviceTestDir = "/data/local/tmp/forgebuild"

// 引擎活动状态
const (
	ActivityIdle     = "IDLE"
	ActivityBuilding = "BUILDING"
	ActivityTesting  = "TESTING"
)

// Activity 引擎当前活动快照（对外导出）
type Activity struct {
	State string `json:"state"`
	RunID string `json:"run_id,omitempty"`
}

// Engine forgebuild门面（对外导出）
type Engine struct {
	cfg  *config.Config
	repo storage.RunRepository
	bus  *events.Bus
	adb  fleet.AdbRunner

	mu       sync.Mutex
	activity Activity
}

// Option Engine构造选项（对外导出）
type Option func(*Engine)

// WithRepository 注入运行历史仓储，替代按配置自动打开（对外导出）
func WithRepository(repo storage.RunRepository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithEventBus 注入事件总线（对外导出）
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithAdbRunner 注入adb执行器（对外导出）
func WithAdbRunner(adb fleet.AdbRunner) Option {
	return func(e *Engine) { e.adb = adb }
}

// New 创建Engine（对外导出）
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		adb:      fleet.DefaultAdbRunner,
		activity: Activity{State: ActivityIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = events.NewBus(false)
	}
	if e.repo == nil {
		repo, err := openRepository(cfg)
		if err != nil {
			return nil, err
		}
		e.repo = repo
	}
	return e, nil
}

func openRepository(cfg *config.Config) (*storage.RunRepo, error) {
	db := cfg.Forgebuild.Storage.Database
	var repo *storage.RunRepo
	var err error
	switch db.Type {
	case "sqlite":
		repo, err = sqlite.Open(db.DSN)
	case "mysql":
		repo, err = mysql.Open(db.DSN)
	case "postgres":
		repo, err = postgres.Open(db.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", db.Type)
	}
	if err != nil {
		return nil, err
	}
	conn := repo.DB()
	conn.SetMaxOpenConns(db.MaxOpenConns)
	conn.SetMaxIdleConns(db.MaxIdleConns)
	conn.SetConnMaxLifetime(db.ConnMaxLifetime)
	return repo, nil
}

// Config 当前配置（对外导出）
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Repository 运行历史仓储（对外导出）
func (e *Engine) Repository() storage.RunRepository {
	return e.repo
}

// Bus 事件总线（对外导出）
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Activity 当前活动快照（对外导出）
// 状态API轮询用；构建/测试过程中的细粒度进度走事件总线
func (e *Engine) Activity() Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activity
}

func (e *Engine) setActivity(state, runID string) {
	e.mu.Lock()
	e.activity = Activity{State: state, RunID: runID}
	e.mu.Unlock()
}

// Close 释放持有的资源（对外导出）
func (e *Engine) Close() error {
	if e.bus != nil {
		if err := e.bus.Close(); err != nil {
			log.Printf("close event bus: %v", err)
		}
	}
	if e.repo != nil {
		return e.repo.Close()
	}
	return nil
}

// Modules 把配置里的模块声明转成可执行模块（对外导出）
func (e *Engine) Modules() []build.Module {
	host := e.cfg.Forgebuild.General.Host
	modules := make([]build.Module, 0, len(e.cfg.Forgebuild.Build.Modules))
	for _, mc := range e.cfg.Forgebuild.Build.Modules {
		spec := build.ModuleSpec{Name: mc.Name, Deps: mc.Deps, InstallPathTemplate: mc.InstallPath}
		installPath := build.ResolveInstallPath(spec, host)
		modules = append(modules, build.NewFuncModule(
			spec,
			e.commandStep(mc.BuildCmd, nil),
			e.commandStep(mc.InstallCmd, map[string]string{"{install_path}": installPath}),
		))
	}
	return modules
}

// commandStep 把shell命令包装成模块构建步骤
// 命令经Worker登记进程组，构建中止时整组回收
func (e *Engine) commandStep(command string, replacements map[string]string) func(w *workqueue.Worker) error {
	if command == "" {
		return nil
	}
	for from, to := range replacements {
		command = strings.ReplaceAll(command, from, to)
	}
	return func(w *workqueue.Worker) error {
		cmd := exec.Command("sh", "-c", command)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := w.StartCommand(cmd); err != nil {
			return fmt.Errorf("start %q: %w", command, err)
		}
		defer w.ReleaseCommand(cmd)
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%q: %v\n%s", command, err, out.String())
		}
		return nil
	}
}

// buildQueue 按配置选择构建队列
// serial走同步调试队列；有重型模块时走负载限制队列，
// 保证重型模块单飞；否则用普通进程池
func (e *Engine) buildQueue() (workqueue.WorkQueue, error) {
	bc := e.cfg.Forgebuild.Build
	if bc.Serial {
		return workqueue.NewBasicWorkQueue(1), nil
	}
	if len(e.heavyModules()) > 0 {
		workers := bc.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		if workers < 2 {
			workers = 2
		}
		return workqueue.NewLoadRestrictingWorkQueue(workers)
	}
	return workqueue.NewProcessPoolWorkQueue(bc.Workers), nil
}

// heavyModules 配置中标记为重型的模块名
func (e *Engine) heavyModules() []string {
	var names []string
	for _, mc := range e.cfg.Forgebuild.Build.Modules {
		if mc.Heavy {
			names = append(names, mc.Name)
		}
	}
	return names
}

// PlanLevels 按依赖分层的构建计划（对外导出）
// 干跑用：不执行任何命令
func (e *Engine) PlanLevels() ([][]string, error) {
	modules := e.Modules()
	depModules := make([]deps.Module, len(modules))
	for i, m := range modules {
		depModules[i] = m
	}
	return plan.Levels(depModules)
}

// BuildOnce 执行一轮完整构建并落库（对外导出）
func (e *Engine) BuildOnce(ctx context.Context) (*storage.Run, error) {
	run := &storage.Run{
		ID:        uuid.NewString(),
		Kind:      storage.RunKindBuild,
		Status:    storage.RunStatusRunning,
		StartTime: time.Now().UTC(),
	}
	e.saveRun(ctx, run)
	e.setActivity(ActivityBuilding, run.ID)
	defer e.setActivity(ActivityIdle, "")

	queue, err := e.buildQueue()
	if err != nil {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.EndTime = time.Now().UTC()
		e.saveRun(ctx, run)
		return run, err
	}
	defer func() {
		queue.Terminate()
		queue.Join()
	}()

	driver := build.NewDriver(queue,
		build.WithRunID(run.ID),
		build.WithEventBus(e.bus),
		build.WithSkipModules(e.cfg.Forgebuild.Build.SkipModules),
		build.WithLoadRestrictedModules(e.heavyModules()))
	results, buildErr := driver.Run(e.Modules())

	for _, r := range results {
		run.ModuleResults = append(run.ModuleResults, storage.ModuleResult{
			ID:      uuid.NewString(),
			Module:  r.Module.Name(),
			Success: r.Success,
			Log:     r.Log,
			Elapsed: r.Elapsed,
		})
	}
	run.EndTime = time.Now().UTC()
	if buildErr != nil {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = buildErr.Error()
	} else {
		run.Status = storage.RunStatusSucceeded
	}
	e.saveRun(ctx, run)
	return run, buildErr
}

// RunTests 发现设备、执行全部用例并落库（对外导出）
func (e *Engine) RunTests(ctx context.Context) (*storage.Run, error) {
	run := &storage.Run{
		ID:        uuid.NewString(),
		Kind:      storage.RunKindTest,
		Status:    storage.RunStatusRunning,
		StartTime: time.Now().UTC(),
	}
	e.saveRun(ctx, run)
	e.setActivity(ActivityTesting, run.ID)
	defer e.setActivity(ActivityIdle, "")

	deviceFleet, err := e.discoverFleet()
	if err != nil {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.EndTime = time.Now().UTC()
		e.saveRun(ctx, run)
		return run, err
	}
	for _, missing := range deviceFleet.Missing() {
		log.Printf("no devices for %s", missing)
	}

	scheduler := testrun.NewScheduler(deviceFleet,
		testrun.WithSchedulerRunID(run.ID),
		testrun.WithSchedulerEventBus(e.bus),
		testrun.WithAdbRunner(e.adb),
		testrun.WithWorkersPerShard(e.cfg.Forgebuild.Test.WorkersPerDevice),
		testrun.WithFlakeCooldown(e.cfg.Forgebuild.Test.FlakeCooldown))

	if err := scheduler.PrepareDevices(e.resetDeviceTestDir); err != nil {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.EndTime = time.Now().UTC()
		e.saveRun(ctx, run)
		return run, err
	}

	report, err := scheduler.Run(e.casesByConfig())
	if err != nil {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.EndTime = time.Now().UTC()
		e.saveRun(ctx, run)
		return run, err
	}
	scheduler.CollectLogsForFailures(report)

	for _, sr := range report.All() {
		row := storage.TestResult{
			ID:      uuid.NewString(),
			Suite:   sr.Suite,
			Outcome: outcomeFor(sr.Result),
		}
		if test := sr.Result.Test(); test != nil {
			row.Name = test.Case.Name()
			row.Config = test.Config().String()
		} else {
			row.Name = "<infrastructure>"
		}
		row.Detail = detailFor(sr.Result)
		run.TestResults = append(run.TestResults, row)
	}

	run.EndTime = time.Now().UTC()
	if report.Successful() {
		run.Status = storage.RunStatusSucceeded
	} else {
		run.Status = storage.RunStatusFailed
		run.ErrorMessage = fmt.Sprintf("%d of %d tests failed", report.NumFailed(), report.NumTests())
	}
	e.saveRun(ctx, run)
	return run, nil
}

// resetDeviceTestDir 重建设备上的用例工作目录
func (e *Engine) resetDeviceTestDir(device *fleet.Device) error {
	cmd := fmt.Sprintf("rm -rf %s && mkdir -p %s", deviceTestDir, deviceTestDir)
	_, err := e.adb("-s", device.Serial, "shell", cmd)
	return err
}

// discoverFleet 并行探测已连接设备
func (e *Engine) discoverFleet() (*fleet.DeviceFleet, error) {
	queue := workqueue.NewProcessPoolWorkQueue(0)
	defer func() {
		queue.Terminate()
		queue.Join()
	}()
	return fleet.DiscoverDevices(queue, e.adb, e.cfg.Forgebuild.Test.Configurations)
}

// casesByConfig 把配置里的用例声明按构建配置分桶
func (e *Engine) casesByConfig() map[fleet.BuildConfig][]testrun.Case {
	cases := make(map[fleet.BuildConfig][]testrun.Case)
	for _, tc := range e.cfg.Forgebuild.Test.Cases {
		tc := tc
		buildConfig := fleet.BuildConfig{API: tc.API, Abi: tc.Abi}
		cases[buildConfig] = append(cases[buildConfig], &testrun.FuncCase{
			CaseName:   tc.Name,
			CaseSuite:  tc.Suite,
			CaseConfig: buildConfig,
			RunFunc:    e.shellCase(tc.Command),
		})
	}
	return cases
}

// shellCase 在设备上执行shell命令并解析退出码
func (e *Engine) shellCase(command string) func(device *fleet.Device) (bool, string, error) {
	return func(device *fleet.Device) (bool, string, error) {
		wrapped := fmt.Sprintf("%s; echo %s $?", command, exitStatusMarker)
		out, err := e.adb("-s", device.Serial, "shell", wrapped)
		if err != nil {
			return false, "", err
		}
		exitCode, output, found := parseExitStatus(out)
		if !found {
			return false, "", fmt.Errorf("Could not find exit status in shell output.")
		}
		return exitCode == 0, output, nil
	}
}

// parseExitStatus 从输出末尾摘出退出码标记行
func parseExitStatus(out string) (int, string, bool) {
	lines := strings.Split(strings.TrimRight(out, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, exitStatusMarker) {
			continue
		}
		code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, exitStatusMarker)))
		if err != nil {
			return 0, "", false
		}
		return code, strings.Join(lines[:i], "\n"), true
	}
	return 0, "", false
}

func outcomeFor(result testrun.Result) string {
	switch result.(type) {
	case *testrun.Success:
		return OutcomePass
	case *testrun.Failure:
		return OutcomeFail
	case *testrun.Skipped:
		return OutcomeSkip
	case *testrun.ExpectedFailure:
		return OutcomeKnownFail
	case *testrun.UnexpectedSuccess:
		return OutcomeShouldFail
	default:
		return OutcomeFail
	}
}

func detailFor(result testrun.Result) string {
	switch r := result.(type) {
	case *testrun.Failure:
		return r.Message
	case *testrun.Skipped:
		return r.Reason
	case *testrun.ExpectedFailure:
		return fmt.Sprintf("known failure for %s (%s): %s", r.BrokenConfig, r.Bug, r.Message)
	case *testrun.UnexpectedSuccess:
		return fmt.Sprintf("passed unexpectedly for %s (%s)", r.BrokenConfig, r.Bug)
	default:
		return ""
	}
}

// saveRun 落库失败只记录：持久化是旁路，不能反过来中止构建
func (e *Engine) saveRun(ctx context.Context, run *storage.Run) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveRun(ctx, run); err != nil {
		log.Printf("save run %s: %v", run.ID, err)
	}
}
