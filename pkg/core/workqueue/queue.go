package workqueue

import (
	"log"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	// defaultQueueSize 任务/结果通道的默认容量（支持大批量提交不阻塞）
	defaultQueueSize = 10000

	// DefaultJoinTimeout Join时单个Worker的等待上限，超时强制放弃（对外导出）
	DefaultJoinTimeout = 8 * time.Second
)

// WorkQueue 队列族的公共契约（对外导出）
// 四种变体（进程池/同步/负载限制/分片）都满足本接口
// （分片队列的AddTask需要分组参数，单独定义）
type WorkQueue interface {
	// AddTask 提交一个任务
	AddTask(fn TaskFunc)
	// GetResult 阻塞获取一个结果；任务失败时返回*TaskError
	GetResult() (any, error)
	// GetResults 阻塞获取至少一个结果，然后非阻塞排空当前可用结果
	GetResults() ([]any, error)
	// Finished 未完成任务数是否为零
	Finished() bool
	// NumTasks 未完成（已提交未取回）任务数
	NumTasks() int
	// Terminate 要求全部Worker退出（信号+进程组清理）
	Terminate()
	// Join 等待全部Worker退出，超时则强制放弃并记录
	Join()
	// WorkerStatuses 各Worker的实时状态快照，供进度渲染
	WorkerStatuses() []string
}

// Option ProcessPoolWorkQueue的构造选项（对外导出）
type Option func(*options)

type options struct {
	taskCh      chan *Task
	resultCh    chan *taskResult
	workerData  any
	joinTimeout time.Duration
}

// WithTaskChannel 注入共享任务通道，用于多个队列组合（对外导出）
func WithTaskChannel(ch chan *Task) Option {
	return func(o *options) { o.taskCh = ch }
}

// WithResultChannel 注入共享结果通道，用于多个队列组合（对外导出）
func WithResultChannel(ch chan *taskResult) Option {
	return func(o *options) { o.resultCh = ch }
}

// WithWorkerData 绑定转发给每个任务的不透明数据（对外导出）
func WithWorkerData(data any) Option {
	return func(o *options) { o.workerData = data }
}

// WithJoinTimeout 调整Join的单Worker等待上限（对外导出）
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) { o.joinTimeout = d }
}

// NewTaskChannel 创建可共享的任务通道（对外导出）
func NewTaskChannel() chan *Task {
	return make(chan *Task, defaultQueueSize)
}

// NewResultChannel 创建可共享的结果通道（对外导出）
func NewResultChannel() chan *taskResult {
	return make(chan *taskResult, defaultQueueSize)
}

// ProcessPoolWorkQueue 并行Worker池队列（对外导出）
//
// N个Worker共享一个任务通道和一个结果通道，两者都可注入以便
// 多个队列组合复用。Worker随构造立即启动，直到Terminate+Join。
type ProcessPoolWorkQueue struct {
	taskCh      chan *Task
	resultCh    chan *taskResult
	workers     []*Worker
	joinTimeout time.Duration

	// numTasks 未完成任务的保守计数：提交时加一，取回结果时减一
	numTasks atomic.Int64
}

// NewProcessPoolWorkQueue 创建Worker池队列（对外导出）
// numWorkers<=0时取CPU核数
func NewProcessPoolWorkQueue(numWorkers int, opts ...Option) *ProcessPoolWorkQueue {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	o := &options{joinTimeout: DefaultJoinTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.taskCh == nil {
		o.taskCh = NewTaskChannel()
	}
	if o.resultCh == nil {
		o.resultCh = NewResultChannel()
	}

	q := &ProcessPoolWorkQueue{
		taskCh:      o.taskCh,
		resultCh:    o.resultCh,
		joinTimeout: o.joinTimeout,
	}
	q.spawnWorkers(numWorkers, o.workerData)
	return q
}

func (q *ProcessPoolWorkQueue) spawnWorkers(numWorkers int, data any) {
	for i := 0; i < numWorkers; i++ {
		w := newWorker(i, data, q.taskCh, q.resultCh)
		w.start()
		q.workers = append(q.workers, w)
	}
}

// AddTask 提交任务（对外导出）
// 同一个Worker内按提交顺序执行；跨Worker不保证顺序
func (q *ProcessPoolWorkQueue) AddTask(fn TaskFunc) {
	q.numTasks.Add(1)
	q.taskCh <- NewTask(fn)
}

// GetResult 阻塞获取一个结果（对外导出）
// 任务内的失败以*TaskError返回，应视为该任务的失败而非队列故障
func (q *ProcessPoolWorkQueue) GetResult() (any, error) {
	res := <-q.resultCh
	q.numTasks.Add(-1)
	if res.err != nil {
		return nil, res.err
	}
	return res.value, nil
}

// GetResults 阻塞获取至少一个结果，然后排空当前可用结果（对外导出）
// 遇到失败结果时返回已收集的结果和该错误
func (q *ProcessPoolWorkQueue) GetResults() ([]any, error) {
	return getResults(q.resultCh, &q.numTasks)
}

// Finished 全部任务是否已完成（对外导出）
func (q *ProcessPoolWorkQueue) Finished() bool {
	return q.numTasks.Load() == 0
}

// NumTasks 未完成任务数（对外导出）
func (q *ProcessPoolWorkQueue) NumTasks() int {
	return int(q.numTasks.Load())
}

// Terminate 向全部Worker发出退出要求并清理其进程组（对外导出）
func (q *ProcessPoolWorkQueue) Terminate() {
	for _, w := range q.workers {
		log.Printf("terminating worker %d", w.id)
		w.terminate()
	}
}

// Join 等待全部Worker退出（对外导出）
// 单个Worker超时未退出时强制清理其进程组并放弃等待，
// 保证关停时延有界；随后清空Worker列表
func (q *ProcessPoolWorkQueue) Join() {
	for _, w := range q.workers {
		log.Printf("joining worker %d", w.id)
		if !w.join(q.joinTimeout) {
			log.Printf("worker %d will not die; abandoning after killing its process groups", w.id)
			w.killProcessGroups()
		}
	}
	q.workers = nil
}

// WorkerStatuses 各Worker状态快照（对外导出）
func (q *ProcessPoolWorkQueue) WorkerStatuses() []string {
	statuses := make([]string, 0, len(q.workers))
	for _, w := range q.workers {
		statuses = append(statuses, w.Status())
	}
	return statuses
}

// Workers 当前Worker列表（对外导出，供组合队列聚合状态）
func (q *ProcessPoolWorkQueue) Workers() []*Worker {
	return q.workers
}

// getResults 共享的批量取结果逻辑
func getResults(resultCh chan *taskResult, numTasks *atomic.Int64) ([]any, error) {
	res := <-resultCh
	numTasks.Add(-1)
	if res.err != nil {
		return nil, res.err
	}
	results := []any{res.value}
	for {
		select {
		case res = <-resultCh:
			numTasks.Add(-1)
			if res.err != nil {
				return results, res.err
			}
			results = append(results, res.value)
		default:
			return results, nil
		}
	}
}
