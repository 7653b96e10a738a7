package build

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stevelan1995/forgebuild/pkg/core/deps"
	"github.com/stevelan1995/forgebuild/pkg/core/events"
	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

// Result 单个模块的构建结果（对外导出）
type Result struct {
	Module  Module
	Success bool
	Log     string        // 失败时的输出/日志
	Elapsed time.Duration // 构建+安装耗时
}

// Driver 依赖驱动的构建循环（对外导出）
//
// 反复从DependencyManager取出就绪前沿提交到队列，消费结果后
// 通知Complete推进前沿，直到前沿与队列同时排空。任何一个模块
// 失败立即中止整个构建（首败即停，不做尽力而为的继续）。
type Driver struct {
	queue workqueue.WorkQueue
	bus   *events.Bus
	runID string

	// skip 这些模块视为已预先构建：参与依赖解析但不入队，
	// 直接标记完成以解锁其依赖方
	skip map[string]bool

	// restricted 重型模块：队列支持时走单Worker受限池，
	// 保证任意时刻至多一个在构建
	restricted map[string]bool
}

// loadRestrictedAdder 支持重型任务单飞提交的队列
type loadRestrictedAdder interface {
	AddLoadRestrictedTask(fn workqueue.TaskFunc)
}

// DriverOption Driver构造选项（对外导出）
type DriverOption func(*Driver)

// WithSkipModules 指定跳过构建的模块名集合（对外导出）
func WithSkipModules(names []string) DriverOption {
	return func(d *Driver) {
		for _, name := range names {
			d.skip[name] = true
		}
	}
}

// WithLoadRestrictedModules 指定重型模块名集合（对外导出）
// 只在队列实现了受限提交时生效，其他队列按普通任务处理
func WithLoadRestrictedModules(names []string) DriverOption {
	return func(d *Driver) {
		for _, name := range names {
			d.restricted[name] = true
		}
	}
}

// WithEventBus 接入进度事件总线（对外导出）
func WithEventBus(bus *events.Bus) DriverOption {
	return func(d *Driver) { d.bus = bus }
}

// WithRunID 指定运行ID，缺省自动生成（对外导出）
func WithRunID(id string) DriverOption {
	return func(d *Driver) { d.runID = id }
}

// NewDriver 创建构建驱动（对外导出）
func NewDriver(queue workqueue.WorkQueue, opts ...DriverOption) *Driver {
	d := &Driver{
		queue:      queue,
		runID:      uuid.NewString(),
		skip:       make(map[string]bool),
		restricted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunID 本次构建运行的ID（对外导出）
func (d *Driver) RunID() string {
	return d.runID
}

// Run 执行整个构建（对外导出）
// 配置错误（空模块集、循环依赖、未知依赖）在任何任务派发前失败。
// 返回nil表示所有模块构建成功；返回的Results含每个模块的耗时。
func (d *Driver) Run(modules []Module) ([]*Result, error) {
	depModules := make([]deps.Module, len(modules))
	for i, m := range modules {
		depModules[i] = m
	}
	manager, err := deps.NewDependencyManager(depModules)
	if err != nil {
		return nil, err
	}

	d.publish(events.Event{Type: events.EventRunStarted, RunID: d.runID})

	var results []*Result
	if err := d.launchBuildable(manager); err != nil {
		return results, err
	}
	for !d.queue.Finished() {
		value, err := d.queue.GetResult()
		if err != nil {
			// Worker内的异常（panic等）同样视为构建失败，整体中止
			d.publish(events.Event{Type: events.EventRunFinished, RunID: d.runID, Message: err.Error()})
			return results, fmt.Errorf("build task failed: %w", err)
		}
		result := value.(*Result)
		results = append(results, result)

		if !result.Success {
			log.Printf("build failed: %s", result.Module.Name())
			d.publish(events.Event{
				Type:    events.EventModuleFailed,
				RunID:   d.runID,
				Subject: result.Module.Name(),
				Message: result.Log,
				Elapsed: result.Elapsed,
			})
			d.publish(events.Event{Type: events.EventRunFinished, RunID: d.runID, Message: "failed"})
			return results, fmt.Errorf("build failed: %s: %s", result.Module.Name(), result.Log)
		}

		d.publish(events.Event{
			Type:    events.EventModuleSucceeded,
			RunID:   d.runID,
			Subject: result.Module.Name(),
			Elapsed: result.Elapsed,
		})
		if err := manager.Complete(result.Module); err != nil {
			return results, err
		}
		if err := d.launchBuildable(manager); err != nil {
			return results, err
		}
	}

	// 防御性检查：队列排空后仍有就绪模块说明调度出现不变量破坏
	if manager.NumBuildable() > 0 {
		return results, fmt.Errorf("build queue finished with %d modules still buildable", manager.NumBuildable())
	}

	d.publish(events.Event{Type: events.EventRunFinished, RunID: d.runID, Message: "ok"})
	log.Println("build finished")
	return results, nil
}

// launchBuildable 排空就绪前沿并全部入队
//
// 跳过模块直接Complete可能当场解锁新的、同样被跳过的模块，
// 如果不用外层while兜住，这批模块会在队列无任务时漏派发，
// 导致循环提前退出。因此必须循环到前沿真正为空。
func (d *Driver) launchBuildable(manager *deps.DependencyManager) error {
	for manager.NumBuildable() > 0 {
		for _, m := range manager.GetBuildable() {
			module := m.(Module)
			if d.skip[module.Name()] {
				if err := manager.Complete(module); err != nil {
					return err
				}
				continue
			}
			d.publish(events.Event{Type: events.EventModuleQueued, RunID: d.runID, Subject: module.Name()})
			if lr, ok := d.queue.(loadRestrictedAdder); ok && d.restricted[module.Name()] {
				lr.AddLoadRestrictedTask(d.buildTask(module))
				continue
			}
			d.queue.AddTask(d.buildTask(module))
		}
	}
	return nil
}

// buildTask 包装单个模块的构建+安装任务
func (d *Driver) buildTask(module Module) workqueue.TaskFunc {
	return func(w *workqueue.Worker) (any, error) {
		start := time.Now()
		w.SetStatus(fmt.Sprintf("Building %s", module.Name()))
		if err := module.Build(w); err != nil {
			return &Result{
				Module:  module,
				Success: false,
				Log:     err.Error(),
				Elapsed: time.Since(start),
			}, nil
		}
		w.SetStatus(fmt.Sprintf("Installing %s", module.Name()))
		if err := module.Install(w); err != nil {
			return &Result{
				Module:  module,
				Success: false,
				Log:     err.Error(),
				Elapsed: time.Since(start),
			}, nil
		}
		return &Result{Module: module, Success: true, Elapsed: time.Since(start)}, nil
	}
}

func (d *Driver) publish(ev events.Event) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(ev); err != nil {
		log.Printf("publish build event: %v", err)
	}
}
