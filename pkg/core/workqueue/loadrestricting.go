package workqueue

import (
	"fmt"
	"sync/atomic"
)

// LoadRestrictingWorkQueue 负载限制队列（对外导出）
//
// 面向构建重型任务的特化队列：某类任务（例如大型兼容性测试套件
// 的构建）单次就能吃满内存和CPU，绝不允许同类并跑。本队列由共享
// 一个结果通道的两个Worker池组成：N-1个Worker的主池承接普通任务，
// 恰好1个Worker的受限池承接重型任务，从机制上保证任意时刻至多
// 一个受限任务在执行，普通任务仍然自由并行。
type LoadRestrictingWorkQueue struct {
	resultCh chan *taskResult

	mainTaskCh       chan *Task
	restrictedTaskCh chan *Task

	mainQueue       *ProcessPoolWorkQueue
	restrictedQueue *ProcessPoolWorkQueue

	numTasks atomic.Int64
}

// NewLoadRestrictingWorkQueue 创建负载限制队列（对外导出）
// numWorkers必须>=2：主池占N-1，受限池固定1
func NewLoadRestrictingWorkQueue(numWorkers int) (*LoadRestrictingWorkQueue, error) {
	if numWorkers < 2 {
		return nil, fmt.Errorf("load restricting work queue needs at least 2 workers, got %d", numWorkers)
	}

	q := &LoadRestrictingWorkQueue{
		resultCh:         NewResultChannel(),
		mainTaskCh:       NewTaskChannel(),
		restrictedTaskCh: NewTaskChannel(),
	}
	q.mainQueue = NewProcessPoolWorkQueue(numWorkers-1,
		WithTaskChannel(q.mainTaskCh), WithResultChannel(q.resultCh))
	q.restrictedQueue = NewProcessPoolWorkQueue(1,
		WithTaskChannel(q.restrictedTaskCh), WithResultChannel(q.resultCh))
	return q, nil
}

// AddTask 提交普通任务到主池（对外导出）
func (q *LoadRestrictingWorkQueue) AddTask(fn TaskFunc) {
	q.numTasks.Add(1)
	q.mainTaskCh <- NewTask(fn)
}

// AddLoadRestrictedTask 提交重型任务到单Worker受限池（对外导出）
func (q *LoadRestrictingWorkQueue) AddLoadRestrictedTask(fn TaskFunc) {
	q.numTasks.Add(1)
	q.restrictedTaskCh <- NewTask(fn)
}

// GetResult 阻塞获取一个结果（对外导出）
// 两个子池的结果汇入同一通道，顺序为完成顺序
func (q *LoadRestrictingWorkQueue) GetResult() (any, error) {
	res := <-q.resultCh
	q.numTasks.Add(-1)
	if res.err != nil {
		return nil, res.err
	}
	return res.value, nil
}

// GetResults 阻塞获取至少一个结果后排空（对外导出）
func (q *LoadRestrictingWorkQueue) GetResults() ([]any, error) {
	return getResults(q.resultCh, &q.numTasks)
}

// Finished 全部任务是否已完成（对外导出）
func (q *LoadRestrictingWorkQueue) Finished() bool {
	return q.numTasks.Load() == 0
}

// NumTasks 未完成任务数（对外导出）
func (q *LoadRestrictingWorkQueue) NumTasks() int {
	return int(q.numTasks.Load())
}

// Terminate 终止两个子池（对外导出）
func (q *LoadRestrictingWorkQueue) Terminate() {
	q.mainQueue.Terminate()
	q.restrictedQueue.Terminate()
}

// Join 等待两个子池退出（对外导出）
func (q *LoadRestrictingWorkQueue) Join() {
	q.mainQueue.Join()
	q.restrictedQueue.Join()
}

// WorkerStatuses 汇总两个子池的Worker状态（对外导出）
func (q *LoadRestrictingWorkQueue) WorkerStatuses() []string {
	statuses := q.mainQueue.WorkerStatuses()
	return append(statuses, q.restrictedQueue.WorkerStatuses()...)
}
