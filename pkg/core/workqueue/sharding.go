package workqueue

import (
	"fmt"
	"sync/atomic"
)

// ShardingGroup 分片组契约（对外导出）
// 一个组内的分片彼此可互换（例如同构的物理测试设备）
type ShardingGroup interface {
	// Name 组的唯一标识，任务按它路由
	Name() string
	// Shards 组内的分片载荷，每个分片拥有自己的子池
	Shards() []any
}

// ShardingWorkQueue 分片队列（对外导出）
//
// 为每个分片组建立专属子池：组内每个分片一个ProcessPoolWorkQueue
// （Worker绑定该分片作为Data），组内共享一个任务通道，全部子池
// 汇入同一个结果通道。AddTask按组标识路由，任务只会落在该组的
// 分片上——兼容性由派发键保证，而不是由可用性碰运气。
type ShardingWorkQueue struct {
	resultCh chan *taskResult

	// taskChs 每组一个任务通道
	taskChs map[string]chan *Task
	// queues 每个分片一个子池
	queues []*ProcessPoolWorkQueue

	numTasks atomic.Int64
}

// NewShardingWorkQueue 创建分片队列（对外导出）
// workersPerShard为每个分片的Worker数
func NewShardingWorkQueue(groups []ShardingGroup, workersPerShard int) *ShardingWorkQueue {
	q := &ShardingWorkQueue{
		resultCh: NewResultChannel(),
		taskChs:  make(map[string]chan *Task),
	}
	for _, group := range groups {
		taskCh := NewTaskChannel()
		q.taskChs[group.Name()] = taskCh
		for _, shard := range group.Shards() {
			q.queues = append(q.queues, NewProcessPoolWorkQueue(workersPerShard,
				WithTaskChannel(taskCh),
				WithResultChannel(q.resultCh),
				WithWorkerData(shard)))
		}
	}
	return q
}

// AddTask 提交任务到指定分片组（对外导出）
// 未注册的组说明调度配置有误，返回错误而不是静默丢任务
func (q *ShardingWorkQueue) AddTask(group ShardingGroup, fn TaskFunc) error {
	taskCh, ok := q.taskChs[group.Name()]
	if !ok {
		return fmt.Errorf("unknown sharding group %q", group.Name())
	}
	q.numTasks.Add(1)
	taskCh <- NewTask(fn)
	return nil
}

// GetResult 阻塞获取一个结果（对外导出）
func (q *ShardingWorkQueue) GetResult() (any, error) {
	res := <-q.resultCh
	q.numTasks.Add(-1)
	if res.err != nil {
		return nil, res.err
	}
	return res.value, nil
}

// GetResults 阻塞获取至少一个结果后排空（对外导出）
func (q *ShardingWorkQueue) GetResults() ([]any, error) {
	return getResults(q.resultCh, &q.numTasks)
}

// Finished 全部任务是否已完成（对外导出）
func (q *ShardingWorkQueue) Finished() bool {
	return q.numTasks.Load() == 0
}

// NumTasks 未完成任务数（对外导出）
func (q *ShardingWorkQueue) NumTasks() int {
	return int(q.numTasks.Load())
}

// Terminate 终止全部分片子池（对外导出）
func (q *ShardingWorkQueue) Terminate() {
	for _, sub := range q.queues {
		sub.Terminate()
	}
}

// Join 等待全部分片子池退出（对外导出）
func (q *ShardingWorkQueue) Join() {
	for _, sub := range q.queues {
		sub.Join()
	}
}

// WorkerStatuses 汇总全部分片子池的Worker状态（对外导出）
func (q *ShardingWorkQueue) WorkerStatuses() []string {
	var statuses []string
	for _, sub := range q.queues {
		statuses = append(statuses, sub.WorkerStatuses()...)
	}
	return statuses
}
