package testrun

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/forgebuild/pkg/core/fleet"
	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

func testDevice(serial string, version int, abis []string) *fleet.Device {
	return &fleet.Device{
		Serial:    serial,
		Name:      "testdevice",
		Version:   version,
		Abis:      abis,
		BuildID:   "TEST001",
		IsRelease: true,
	}
}

func testFleet(t *testing.T, devices ...*fleet.Device) *fleet.DeviceFleet {
	t.Helper()
	configs := make(map[int][]string)
	for _, d := range devices {
		configs[d.Version] = append(configs[d.Version], d.Abis...)
	}
	f := fleet.NewDeviceFleet(configs)
	for _, d := range devices {
		f.AddDevice(d)
	}
	return f
}

// runOnDevice 在绑定指定设备的单Worker队列上执行一个TestRun
func runOnDevice(t *testing.T, device *fleet.Device, run *TestRun) Result {
	t.Helper()
	queue := workqueue.NewProcessPoolWorkQueue(1, workqueue.WithWorkerData(device))
	t.Cleanup(func() {
		queue.Terminate()
		queue.Join()
	})
	queue.AddTask(run.Task())
	value, err := queue.GetResult()
	require.NoError(t, err)
	return value.(Result)
}

func TestTestRun_Classification(t *testing.T) {
	device := testDevice("s1", 30, []string{"arm64-v8a"})
	group := fleet.NewDeviceShardingGroup(device)
	config := fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}

	t.Run("Success", func(t *testing.T) {
		c := &FuncCase{CaseName: "ok", CaseSuite: "suite", CaseConfig: config}
		result := runOnDevice(t, device, NewTestRun(c, group))
		assert.IsType(t, &Success{}, result)
		assert.True(t, result.Passed())
	})

	t.Run("Failure", func(t *testing.T) {
		c := &FuncCase{CaseName: "bad", CaseSuite: "suite", CaseConfig: config,
			RunFunc: func(*fleet.Device) (bool, string, error) { return false, "assertion failed", nil }}
		result := runOnDevice(t, device, NewTestRun(c, group))
		failure, ok := result.(*Failure)
		require.True(t, ok)
		assert.Equal(t, "assertion failed", failure.Message)
		assert.Contains(t, failure.ReproCmd, "--serial s1")
	})

	t.Run("RunErrorBecomesFailure", func(t *testing.T) {
		c := &FuncCase{CaseName: "err", CaseSuite: "suite", CaseConfig: config,
			RunFunc: func(*fleet.Device) (bool, string, error) { return false, "", errors.New("adb died") }}
		result := runOnDevice(t, device, NewTestRun(c, group))
		failure, ok := result.(*Failure)
		require.True(t, ok)
		assert.Equal(t, "adb died", failure.Message)
	})

	t.Run("Skipped", func(t *testing.T) {
		c := &FuncCase{CaseName: "skip", CaseSuite: "suite", CaseConfig: config,
			Unsupported: func(*fleet.Device) string { return "needs vulkan" }}
		result := runOnDevice(t, device, NewTestRun(c, group))
		skipped, ok := result.(*Skipped)
		require.True(t, ok)
		assert.Equal(t, "needs vulkan", skipped.Reason)
		assert.False(t, result.Passed())
		assert.False(t, result.Failed())
	})

	t.Run("ExpectedFailure", func(t *testing.T) {
		c := &FuncCase{CaseName: "xfail", CaseSuite: "suite", CaseConfig: config,
			RunFunc: func(*fleet.Device) (bool, string, error) { return false, "known crash", nil },
			Broken:  func(*fleet.Device) (string, string) { return "arm64-v8a", "issue/42" }}
		result := runOnDevice(t, device, NewTestRun(c, group))
		assert.IsType(t, &ExpectedFailure{}, result)
		assert.True(t, result.Passed(), "已知破损配置下的失败应视为通过")
	})

	t.Run("UnexpectedSuccess", func(t *testing.T) {
		c := &FuncCase{CaseName: "xpass", CaseSuite: "suite", CaseConfig: config,
			Broken: func(*fleet.Device) (string, string) { return "arm64-v8a", "issue/42" }}
		result := runOnDevice(t, device, NewTestRun(c, group))
		assert.IsType(t, &UnexpectedSuccess{}, result)
		assert.True(t, result.Failed(), "已知破损配置下的通过应视为失败")
	})
}

func TestReport_CountsAndFlakyRemoval(t *testing.T) {
	report := NewReport()
	report.AddResult("a", NewSuccess(nil))
	report.AddResult("a", NewFailure(nil, "Could not find exit status in shell output.", ""))
	report.AddResult("b", NewFailure(nil, "real failure", ""))
	report.AddResult("b", NewSkipped(nil, "no device"))

	assert.Equal(t, 4, report.NumTests())
	assert.Equal(t, 2, report.NumFailed())
	assert.Equal(t, 1, report.NumPassed())
	assert.False(t, report.Successful())
	assert.Equal(t, []string{"a", "b"}, report.Suites())

	removed := report.RemoveAllFailingFlaky(DefaultFlakePredicate)
	require.Len(t, removed, 1)
	assert.Equal(t, 3, report.NumTests())
	assert.Equal(t, 1, report.NumFailed(), "真失败必须保留")
}

func TestReport_RemoveAllTrueFailures(t *testing.T) {
	report := NewReport()
	report.AddResult("a", NewSuccess(nil))
	report.AddResult("a", NewFailure(nil, "segfault", ""))
	report.AddResult("b", NewUnexpectedSuccess(nil, "cfg", "bug"))

	removed := report.RemoveAllTrueFailures()
	require.Len(t, removed, 2)
	assert.Equal(t, 1, report.NumTests())
	assert.True(t, report.Successful())
}

func TestDefaultFlakePredicate(t *testing.T) {
	assert.True(t, DefaultFlakePredicate(NewFailure(nil, "Could not find exit status in shell output.", "")))
	assert.False(t, DefaultFlakePredicate(NewFailure(nil, "segfault", "")))
	// 意外通过不是环境抖动
	assert.False(t, DefaultFlakePredicate(NewUnexpectedSuccess(nil, "cfg", "bug")))
}

func TestMatchConfigsToDeviceGroups(t *testing.T) {
	f := testFleet(t,
		testDevice("new", 30, []string{"arm64-v8a"}),
		testDevice("old", 21, []string{"x86"}),
	)

	matches := MatchConfigsToDeviceGroups(f, []fleet.BuildConfig{
		{API: 21, Abi: "arm64-v8a"},
		{API: 21, Abi: "x86"},
		{API: 30, Abi: "x86"},
	})

	require.Len(t, matches[fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}], 1)
	require.Len(t, matches[fleet.BuildConfig{API: 21, Abi: "x86"}], 1)
	// x86设备只有API 21，跑不了API 30的产物
	assert.Empty(t, matches[fleet.BuildConfig{API: 30, Abi: "x86"}])
}

func TestPairTestRuns_SkipsForMissingDevices(t *testing.T) {
	// arm64槽位有设备，x86槽位空缺
	f := fleet.NewDeviceFleet(map[int][]string{30: {"arm64-v8a"}, 21: {"x86"}})
	f.AddDevice(testDevice("s1", 30, []string{"arm64-v8a"}))

	report := NewReport()
	runs := PairTestRuns(f, map[fleet.BuildConfig][]Case{
		{API: 21, Abi: "arm64-v8a"}: {&FuncCase{CaseName: "t1", CaseSuite: "suite"}},
		{API: 21, Abi: "x86"}:       {&FuncCase{CaseName: "t2", CaseSuite: "suite"}},
	}, report)

	require.Len(t, runs, 1)
	assert.Equal(t, "t1", runs[0].Case.Name())

	// 空缺槽位对应的用例记为Skipped而不是消失
	require.Equal(t, 1, report.NumTests())
	skipped, ok := report.All()[0].Result.(*Skipped)
	require.True(t, ok)
	assert.Contains(t, skipped.Reason, "no devices")
}

func TestScheduler_RunAllCases(t *testing.T) {
	f := testFleet(t, testDevice("s1", 30, []string{"arm64-v8a"}))
	config := fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}

	var ran atomic.Int64
	cases := []Case{
		&FuncCase{CaseName: "t1", CaseSuite: "suite", CaseConfig: config,
			RunFunc: func(d *fleet.Device) (bool, string, error) {
				assert.Equal(t, "s1", d.Serial)
				ran.Add(1)
				return true, "", nil
			}},
		&FuncCase{CaseName: "t2", CaseSuite: "suite", CaseConfig: config,
			RunFunc: func(*fleet.Device) (bool, string, error) {
				ran.Add(1)
				return true, "", nil
			}},
	}

	s := NewScheduler(f)
	report, err := s.Run(map[fleet.BuildConfig][]Case{config: cases})
	require.NoError(t, err)

	assert.Equal(t, int64(2), ran.Load())
	assert.Equal(t, 2, report.NumTests())
	assert.True(t, report.Successful())
}

func TestScheduler_PrepareDevices(t *testing.T) {
	f := testFleet(t,
		testDevice("s1", 30, []string{"arm64-v8a"}),
		testDevice("s2", 21, []string{"x86"}),
	)

	var mu sync.Mutex
	prepared := make(map[string]bool)
	err := NewScheduler(f).PrepareDevices(func(d *fleet.Device) error {
		mu.Lock()
		prepared[d.Serial] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s1": true, "s2": true}, prepared)

	// 任何一台设备准备失败都必须向上报告
	err = NewScheduler(f).PrepareDevices(func(d *fleet.Device) error {
		if d.Serial == "s2" {
			return errors.New("push failed")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s2")
}

func TestScheduler_FlakyRetriedOnce(t *testing.T) {
	f := testFleet(t, testDevice("s1", 30, []string{"arm64-v8a"}))
	config := fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}

	var attempts atomic.Int64
	flaky := &FuncCase{CaseName: "flaky", CaseSuite: "suite", CaseConfig: config,
		RunFunc: func(*fleet.Device) (bool, string, error) {
			if attempts.Add(1) == 1 {
				return false, "Could not find exit status in shell output.", nil
			}
			return true, "", nil
		}}

	s := NewScheduler(f, WithFlakeCooldown(time.Millisecond))
	report, err := s.Run(map[fleet.BuildConfig][]Case{config: {flaky}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), attempts.Load(), "抖动失败应恰好重试一次")
	assert.Equal(t, 1, report.NumTests())
	assert.True(t, report.Successful())
}

func TestScheduler_FlakySecondFailureIsFinal(t *testing.T) {
	f := testFleet(t, testDevice("s1", 30, []string{"arm64-v8a"}))
	config := fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}

	var attempts atomic.Int64
	stubborn := &FuncCase{CaseName: "stubborn", CaseSuite: "suite", CaseConfig: config,
		RunFunc: func(*fleet.Device) (bool, string, error) {
			attempts.Add(1)
			return false, "Could not find exit status in shell output.", nil
		}}

	s := NewScheduler(f, WithFlakeCooldown(time.Millisecond))
	report, err := s.Run(map[fleet.BuildConfig][]Case{config: {stubborn}})
	require.NoError(t, err)

	// 只重试一轮，第二次失败按真失败记入
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, 1, report.NumFailed())
}

func TestScheduler_CollectLogsForFailures(t *testing.T) {
	device := testDevice("s1", 30, []string{"arm64-v8a"})
	f := testFleet(t, device)
	config := fleet.BuildConfig{API: 21, Abi: "arm64-v8a"}

	var cleared atomic.Bool
	adb := func(args ...string) (string, error) {
		if len(args) >= 3 && args[2] == "logcat" {
			if args[3] == "-c" {
				cleared.Store(true)
				return "", nil
			}
			return "E/libc: fatal signal 11", nil
		}
		return "", errors.New("unexpected adb call")
	}

	failing := &FuncCase{CaseName: "crash", CaseSuite: "suite", CaseConfig: config,
		RunFunc: func(*fleet.Device) (bool, string, error) { return false, "boom", nil }}

	s := NewScheduler(f, WithAdbRunner(adb))
	report, err := s.Run(map[fleet.BuildConfig][]Case{config: {failing}})
	require.NoError(t, err)
	require.Equal(t, 1, report.NumFailed())

	s.CollectLogsForFailures(report)

	failure := report.AllFailed()[0].(*Failure)
	assert.True(t, cleared.Load(), "重跑前必须清空设备日志")
	assert.Contains(t, failure.Message, "boom")
	assert.Contains(t, failure.Message, "fatal signal 11")
}
