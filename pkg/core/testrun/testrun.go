package testrun

import (
	"fmt"

	"github.com/stevelan1995/forgebuild/pkg/core/fleet"
	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

// Case 单个测试用例的契约（对外导出）
//
// 用例自身只描述"在一台设备上怎么跑"，不关心设备从哪来；
// 设备分配与分片路由由调度器负责。
type Case interface {
	Name() string
	// Suite 所属测试套件，报告按它分节
	Suite() string
	// Config 用例产物的构建配置，决定兼容的设备范围
	Config() fleet.BuildConfig
	// Run 在指定设备上执行，返回是否通过与输出
	Run(device *fleet.Device) (success bool, output string, err error)
	// CheckUnsupported 返回非空原因时该设备上跳过执行
	CheckUnsupported(device *fleet.Device) string
	// CheckBroken 返回非空配置时视为已知破损：失败是预期，通过是意外
	CheckBroken(device *fleet.Device) (brokenConfig string, bug string)
}

// TestRun 用例与设备分组的配对（对外导出）
// 调度的基本单位：同一个用例对每个兼容分组各生成一个TestRun
type TestRun struct {
	Case  Case
	Group *fleet.DeviceShardingGroup
}

// NewTestRun 创建配对（对外导出）
func NewTestRun(c Case, group *fleet.DeviceShardingGroup) *TestRun {
	return &TestRun{Case: c, Group: group}
}

func (t *TestRun) Name() string {
	// 槽位空缺产生的Skipped记录没有分组
	if t.Group == nil {
		return t.Case.Name()
	}
	return fmt.Sprintf("%s %s", t.Case.Name(), t.Group)
}

func (t *TestRun) Suite() string {
	return t.Case.Suite()
}

func (t *TestRun) Config() fleet.BuildConfig {
	return t.Case.Config()
}

// Run 在Worker绑定的设备上执行并归类结果（对外导出）
// 一切失败都折叠进Result，任务本身不返回error——
// 单个用例的失败不该中止整轮测试
func (t *TestRun) Run(w *workqueue.Worker) Result {
	device := w.Data.(*fleet.Device)
	w.SetStatus(fmt.Sprintf("Running %s on %s", t.Case.Name(), device.Serial))
	defer w.SetStatus(workqueue.StatusIdle)

	if reason := t.Case.CheckUnsupported(device); reason != "" {
		return NewSkipped(t, reason)
	}

	success, output, err := t.Case.Run(device)
	if err != nil {
		return NewFailure(t, err.Error(), t.reproCmd(device))
	}

	brokenConfig, bug := t.Case.CheckBroken(device)
	if brokenConfig != "" {
		if success {
			return NewUnexpectedSuccess(t, brokenConfig, bug)
		}
		return NewExpectedFailure(t, output, brokenConfig, bug)
	}

	if success {
		return NewSuccess(t)
	}
	return NewFailure(t, output, t.reproCmd(device))
}

// Task 包装为可提交给队列的任务（对外导出）
func (t *TestRun) Task() workqueue.TaskFunc {
	return func(w *workqueue.Worker) (any, error) {
		return t.Run(w), nil
	}
}

func (t *TestRun) reproCmd(device *fleet.Device) string {
	return fmt.Sprintf("forgebuild test --filter %s --serial %s", t.Case.Name(), device.Serial)
}

// FuncCase 以闭包实现的用例（对外导出）
// 配置驱动的外部命令用例与测试中的桩都用它
type FuncCase struct {
	CaseName    string
	CaseSuite   string
	CaseConfig  fleet.BuildConfig
	RunFunc     func(device *fleet.Device) (bool, string, error)
	Unsupported func(device *fleet.Device) string
	Broken      func(device *fleet.Device) (string, string)
}

func (c *FuncCase) Name() string              { return c.CaseName }
func (c *FuncCase) Suite() string             { return c.CaseSuite }
func (c *FuncCase) Config() fleet.BuildConfig { return c.CaseConfig }

func (c *FuncCase) Run(device *fleet.Device) (bool, string, error) {
	if c.RunFunc == nil {
		return true, "", nil
	}
	return c.RunFunc(device)
}

func (c *FuncCase) CheckUnsupported(device *fleet.Device) string {
	if c.Unsupported == nil {
		return ""
	}
	return c.Unsupported(device)
}

func (c *FuncCase) CheckBroken(device *fleet.Device) (string, string) {
	if c.Broken == nil {
		return "", ""
	}
	return c.Broken(device)
}
