package workqueue

import (
	"fmt"
	"runtime/debug"
)

// BasicWorkQueue 无并行的同步队列（对外导出）
//
// 任务在调用方的goroutine内、GetResult时才执行。
// 用于调试复现：排查问题时先切到本队列，确认是否并发相关。
type BasicWorkQueue struct {
	tasks      []*Task
	workerData any
}

// NewBasicWorkQueue 创建同步队列（对外导出）
// numWorkers仅为与其他变体签名对齐，实际被忽略
func NewBasicWorkQueue(numWorkers int, opts ...Option) *BasicWorkQueue {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	_ = numWorkers
	return &BasicWorkQueue{workerData: o.workerData}
}

// AddTask 入队任务，直到GetResult才执行（对外导出）
func (q *BasicWorkQueue) AddTask(fn TaskFunc) {
	q.tasks = append(q.tasks, NewTask(fn))
}

// GetResult 取出队首任务立即执行并返回结果（对外导出）
// 失败同样包装为*TaskError，与并行变体行为一致
func (q *BasicWorkQueue) GetResult() (value any, err error) {
	task := q.tasks[0]
	q.tasks = q.tasks[1:]

	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &TaskError{
				Message: fmt.Sprintf("panic in task: %v", r),
				Trace:   string(debug.Stack()),
			}
		}
	}()

	// 同步执行仍提供一个Worker载体，让任务能照常读写状态和数据
	w := newWorker(0, q.workerData, nil, nil)
	value, err = task.Run(w)
	if err != nil {
		if _, ok := err.(*TaskError); !ok {
			err = &TaskError{Message: err.Error()}
		}
		return nil, err
	}
	return value, nil
}

// GetResults 执行并返回队首一个结果（对外导出）
// 同步队列没有"已就绪"的积压，语义上等价于单次GetResult
func (q *BasicWorkQueue) GetResults() ([]any, error) {
	value, err := q.GetResult()
	if err != nil {
		return nil, err
	}
	return []any{value}, nil
}

// Finished 队列中是否已无任务（对外导出）
func (q *BasicWorkQueue) Finished() bool {
	return len(q.tasks) == 0
}

// NumTasks 尚未执行的任务数（对外导出）
func (q *BasicWorkQueue) NumTasks() int {
	return len(q.tasks)
}

// Terminate 无操作（对外导出）
func (q *BasicWorkQueue) Terminate() {}

// Join 无操作（对外导出）
func (q *BasicWorkQueue) Join() {}

// WorkerStatuses 同步队列没有常驻Worker（对外导出）
func (q *BasicWorkQueue) WorkerStatuses() []string {
	return nil
}
