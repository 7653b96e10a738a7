package testrun

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stevelan1995/forgebuild/pkg/core/events"
	"github.com/stevelan1995/forgebuild/pkg/core/fleet"
	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

const (
	// defaultWorkersPerShard 每台设备的并发执行槽
	defaultWorkersPerShard = 4

	// DefaultFlakeCooldown 环境抖动重试前的冷却时间（对外导出）
	// 给设备留出从瞬时故障（adb掉线等）中恢复的余地
	DefaultFlakeCooldown = 10 * time.Second
)

// DefaultFlakePredicate 默认的抖动判定（对外导出）
// adb偶发丢失shell退出状态，这类失败与被测代码无关
func DefaultFlakePredicate(result Result) bool {
	failure, ok := result.(*Failure)
	if !ok {
		return false
	}
	return strings.Contains(failure.Message, "Could not find exit status in shell output.")
}

// MatchConfigsToDeviceGroups 构建配置到兼容设备分组的映射（对外导出）
// 一个配置可以匹配多个分组（同一产物在不同设备环境各跑一遍）
func MatchConfigsToDeviceGroups(f *fleet.DeviceFleet, configs []fleet.BuildConfig) map[fleet.BuildConfig][]*fleet.DeviceShardingGroup {
	matches := make(map[fleet.BuildConfig][]*fleet.DeviceShardingGroup)
	for _, config := range configs {
		for _, group := range f.UniqueDeviceGroups() {
			if group.Devices[0].CanRunBuildConfig(config) {
				matches[config] = append(matches[config], group)
			}
		}
	}
	return matches
}

// PairTestRuns 将用例与兼容分组配对（对外导出）
//
// 每个用例对其配置的每个兼容分组生成一个TestRun。期望配置里
// 尚无设备的槽位不能静默吞掉用例：对应用例记为Skipped写入报告。
func PairTestRuns(f *fleet.DeviceFleet, casesByConfig map[fleet.BuildConfig][]Case, report *Report) []*TestRun {
	var runs []*TestRun
	for config, cases := range casesByConfig {
		groups := MatchConfigsToDeviceGroups(f, []fleet.BuildConfig{config})[config]
		for _, group := range groups {
			for _, c := range cases {
				runs = append(runs, NewTestRun(c, group))
			}
		}
	}

	for _, missing := range f.MissingConfigs() {
		for config, cases := range casesByConfig {
			// 空缺槽位的设备本可以跑这个配置才算真正缺席
			if missing.API < config.API || missing.Abi != config.Abi {
				continue
			}
			for _, c := range cases {
				result := NewSkipped(NewTestRun(c, nil), fmt.Sprintf("no devices for %s", missing))
				report.AddResult(c.Suite(), result)
			}
		}
	}
	return runs
}

// Shuffle 打乱派发顺序（对外导出）
// 避免同一套件的重负载用例扎堆压在同一个分组上
func Shuffle(runs []*TestRun) {
	rand.Shuffle(len(runs), func(i, j int) {
		runs[i], runs[j] = runs[j], runs[i]
	})
}

// SchedulerOption Scheduler构造选项（对外导出）
type SchedulerOption func(*Scheduler)

// WithFlakePredicate 替换抖动判定（对外导出）
func WithFlakePredicate(pred func(Result) bool) SchedulerOption {
	return func(s *Scheduler) { s.flakePred = pred }
}

// WithFlakeCooldown 调整抖动重试冷却时间（对外导出）
func WithFlakeCooldown(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.flakeCooldown = d }
}

// WithSchedulerEventBus 注入进度事件总线（对外导出）
func WithSchedulerEventBus(bus *events.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

// WithSchedulerRunID 指定运行ID（对外导出）
func WithSchedulerRunID(id string) SchedulerOption {
	return func(s *Scheduler) { s.runID = id }
}

// WithAdbRunner 注入adb执行器，日志收集用（对外导出）
func WithAdbRunner(adb fleet.AdbRunner) SchedulerOption {
	return func(s *Scheduler) { s.adb = adb }
}

// WithWorkersPerShard 调整每台设备的并发执行槽（对外导出）
func WithWorkersPerShard(n int) SchedulerOption {
	return func(s *Scheduler) { s.workersPerShard = n }
}

// Scheduler 测试调度器（对外导出）
//
// 按设备分组建立分片队列，打乱后派发全部TestRun，消费结果
// 汇入Report；疑似环境抖动的失败冷却后原组重试一次。
type Scheduler struct {
	fleet           *fleet.DeviceFleet
	bus             *events.Bus
	runID           string
	adb             fleet.AdbRunner
	flakePred       func(Result) bool
	flakeCooldown   time.Duration
	workersPerShard int
}

// NewScheduler 创建调度器（对外导出）
func NewScheduler(f *fleet.DeviceFleet, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		fleet:           f,
		runID:           uuid.NewString(),
		adb:             fleet.DefaultAdbRunner,
		flakePred:       DefaultFlakePredicate,
		flakeCooldown:   DefaultFlakeCooldown,
		workersPerShard: defaultWorkersPerShard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID 本轮运行ID（对外导出）
func (s *Scheduler) RunID() string {
	return s.runID
}

func (s *Scheduler) shardingGroups() []workqueue.ShardingGroup {
	unique := s.fleet.UniqueDeviceGroups()
	groups := make([]workqueue.ShardingGroup, len(unique))
	for i, g := range unique {
		groups[i] = g
	}
	return groups
}

// Run 执行一轮测试（对外导出）
func (s *Scheduler) Run(casesByConfig map[fleet.BuildConfig][]Case) (*Report, error) {
	report := NewReport()
	runs := PairTestRuns(s.fleet, casesByConfig, report)
	Shuffle(runs)

	queue := workqueue.NewShardingWorkQueue(s.shardingGroups(), s.workersPerShard)
	defer func() {
		queue.Terminate()
		queue.Join()
	}()

	for _, run := range runs {
		if err := queue.AddTask(run.Group, run.Task()); err != nil {
			return nil, err
		}
	}

	// 抖动失败只重试一轮；第二次仍失败就按真失败记入
	retried := false
	for {
		s.waitForResults(report, queue)
		if retried {
			break
		}
		retried = true
		if s.restartFlakyTests(report, queue) == 0 {
			break
		}
	}
	return report, nil
}

// PrepareDevices 并行执行每台设备的准备步骤（对外导出）
//
// 测试目录清理、产物推送这类按设备一次的动作在派发用例前统一
// 完成。任何一台设备准备失败都返回错误，本轮不应继续。
func (s *Scheduler) PrepareDevices(setup func(device *fleet.Device) error) error {
	var devices []*fleet.Device
	for _, group := range s.fleet.UniqueDeviceGroups() {
		devices = append(devices, group.Devices...)
	}
	if len(devices) == 0 {
		return nil
	}

	queue := workqueue.NewProcessPoolWorkQueue(len(devices))
	defer func() {
		queue.Terminate()
		queue.Join()
	}()

	for _, device := range devices {
		device := device
		queue.AddTask(func(w *workqueue.Worker) (any, error) {
			w.SetStatus(fmt.Sprintf("preparing %s", device.Serial))
			if err := setup(device); err != nil {
				return nil, fmt.Errorf("prepare device %s: %w", device.Serial, err)
			}
			return device.Serial, nil
		})
	}

	var firstErr error
	for !queue.Finished() {
		if _, err := queue.GetResult(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// waitForResults 消费结果直到队列排空
// 带不上用例身份的失败（任务panic等）按基础设施失败单条记入，
// 不中止整轮
func (s *Scheduler) waitForResults(report *Report, queue *workqueue.ShardingWorkQueue) {
	for !queue.Finished() {
		values, err := queue.GetResults()
		for _, v := range values {
			result := v.(Result)
			suite := InfraSuite
			if result.Test() != nil {
				suite = result.Test().Suite()
			}
			report.AddResult(suite, result)
			s.publishResult(result)
		}
		if err != nil {
			result := NewFailure(nil, err.Error(), "")
			report.AddResult(InfraSuite, result)
			s.publishResult(result)
		}
	}
}

// restartFlakyTests 摘除疑似抖动的失败并原组重发，返回重发数
func (s *Scheduler) restartFlakyTests(report *Report, queue *workqueue.ShardingWorkQueue) int {
	flaky := report.RemoveAllFailingFlaky(s.flakePred)
	if len(flaky) == 0 {
		return 0
	}

	log.Printf("waiting %v before restarting %d flaky tests", s.flakeCooldown, len(flaky))
	time.Sleep(s.flakeCooldown)

	restarted := 0
	for _, result := range flaky {
		test := result.Test()
		if test == nil {
			continue
		}
		s.publishEvent(events.EventFlakyRetry, test.Name(), "")
		if err := queue.AddTask(test.Group, test.Task()); err != nil {
			// 分组消失说明队列被外部终止，按真失败记回
			report.AddResult(test.Suite(), result)
			continue
		}
		restarted++
	}
	return restarted
}

// CollectLogsForFailures 为真失败补采设备日志（对外导出）
//
// 每个分组单执行槽的新队列串行重跑失败用例：清空设备日志、
// 重跑、抓取日志追加到失败信息。复用原队列会和并发中的其他
// 用例混日志。
func (s *Scheduler) CollectLogsForFailures(report *Report) {
	var failures []*Failure
	for _, result := range report.AllFailed() {
		if failure, ok := result.(*Failure); ok && failure.Test() != nil {
			failures = append(failures, failure)
		}
	}
	if len(failures) == 0 {
		return
	}

	queue := workqueue.NewShardingWorkQueue(s.shardingGroups(), 1)
	defer func() {
		queue.Terminate()
		queue.Join()
	}()

	pending := 0
	for _, failure := range failures {
		failure := failure
		err := queue.AddTask(failure.Test().Group, func(w *workqueue.Worker) (any, error) {
			device := w.Data.(*fleet.Device)
			if _, err := s.adb("-s", device.Serial, "logcat", "-c"); err != nil {
				return nil, err
			}
			failure.Test().Run(w)
			logOut, err := s.adb("-s", device.Serial, "logcat", "-d")
			if err != nil {
				return nil, err
			}
			failure.Message += "\ndevice log:\n" + logOut
			return nil, nil
		})
		if err != nil {
			log.Printf("cannot collect logs for %s: %v", failure.Test().Name(), err)
			continue
		}
		pending++
	}

	for pending > 0 {
		if _, err := queue.GetResult(); err != nil {
			log.Printf("log collection failed: %v", err)
		}
		pending--
	}
}

func (s *Scheduler) publishResult(result Result) {
	subject := "<unknown test>"
	if result.Test() != nil {
		subject = result.Test().Name()
	}
	s.publishEvent(events.EventTestResult, subject, result.String())
}

func (s *Scheduler) publishEvent(eventType events.EventType, subject, message string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(events.Event{
		RunID:   s.runID,
		Type:    eventType,
		Subject: subject,
		Message: message,
	}); err != nil {
		log.Printf("publish %s event: %v", eventType, err)
	}
}
