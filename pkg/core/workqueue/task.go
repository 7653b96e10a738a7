// Package workqueue 提供把异步工作委托给Worker池执行的任务队列族
//
// 四种队列变体共享同一套契约：AddTask提交任务，GetResult阻塞获取结果，
// Finished判断是否全部完成，Terminate/Join两段式关停。
// 任务内部的失败（返回error或panic）在Worker中被捕获并包装为TaskError，
// 经由结果通道原样送回调用方，不会破坏队列本身。
package workqueue

import (
	"fmt"
)

// TaskFunc 任务函数类型（对外导出）
// 首个参数固定为执行该任务的Worker，用于更新状态、访问绑定数据
// 以及登记派生的外部命令
type TaskFunc func(w *Worker) (any, error)

// Task 一次性执行的工作单元（对外导出）
// 创建后不可变，被某个Worker消费恰好一次
type Task struct {
	fn TaskFunc
}

// NewTask 创建任务实例（对外导出）
func NewTask(fn TaskFunc) *Task {
	return &Task{fn: fn}
}

// Run 执行任务
func (t *Task) Run(w *Worker) (any, error) {
	return t.fn(w)
}

// TaskError 任务执行失败的包装错误（对外导出）
//
// Worker内的失败不会中断队列，而是被捕获、附带格式化的调用栈文本，
// 经结果通道传回后由消费方的GetResult作为error返回。
// 不跨越执行边界传递原始异常对象，只传递 {Message, Trace} 结构。
type TaskError struct {
	Message string
	Trace   string
}

func (e *TaskError) Error() string {
	if e.Trace != "" {
		return fmt.Sprintf("%s\n%s", e.Message, e.Trace)
	}
	return e.Message
}

// taskResult 结果通道上的信封
type taskResult struct {
	value any
	err   *TaskError
}
