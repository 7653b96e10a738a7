package workqueue

import (
	"fmt"
	"log"
	"os/exec"
	"runtime/debug"
	"sync"
	"syscall"
	"time"
)

const (
	// StatusIdle Worker空闲状态（对外导出）
	StatusIdle = "IDLE"
	// StatusException Worker最近一个任务以异常结束（对外导出）
	StatusException = "EXCEPTION"
)

// Worker 任务执行器（对外导出）
//
// 与所属队列同生命周期的长驻执行单元：循环从任务通道取任务执行，
// 把结果（或包装后的TaskError）送入结果通道。Status在锁保护下
// 可被父侧（进度UI）并发读取；结果产生时状态自动复位为IDLE，
// 因此轮询Status的一方无需消费结果即可观察到任务完成。
type Worker struct {
	// Data 队列绑定的不透明载荷，转发给该Worker执行的每个任务
	// （例如测试分片对应的设备句柄）
	Data any

	id       int
	tasks    <-chan *Task
	results  chan<- *taskResult
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	statusMu sync.Mutex
	status   string

	// pgids 任务派生的外部命令所在的进程组
	// Terminate时整组杀掉，保证不残留孤儿进程
	pgidMu sync.Mutex
	pgids  map[int]bool
}

func newWorker(id int, data any, tasks <-chan *Task, results chan<- *taskResult) *Worker {
	w := &Worker{
		Data:    data,
		id:      id,
		tasks:   tasks,
		results: results,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		status:  StatusIdle,
		pgids:   make(map[int]bool),
	}
	return w
}

func (w *Worker) start() {
	go w.main()
}

// Status 读取Worker当前状态（对外导出）
func (w *Worker) Status() string {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

// SetStatus 更新Worker状态（对外导出）
// 任务执行过程中可随时调用，供进度上报
func (w *Worker) SetStatus(status string) {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	w.status = status
}

// StartCommand 启动外部命令并登记其进程组（对外导出）
//
// 命令被放入独立进程组，Worker被终止时整组杀掉，
// 外部工具派生的孙进程也不会存活。命令结束后调用方
// 应调用ReleaseCommand注销。
func (w *Worker) StartCommand(cmd *exec.Cmd) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if err := cmd.Start(); err != nil {
		return err
	}
	w.pgidMu.Lock()
	w.pgids[cmd.Process.Pid] = true
	w.pgidMu.Unlock()
	return nil
}

// ReleaseCommand 注销已结束命令的进程组（对外导出）
func (w *Worker) ReleaseCommand(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	w.pgidMu.Lock()
	delete(w.pgids, cmd.Process.Pid)
	w.pgidMu.Unlock()
}

// terminate 请求Worker退出并杀掉其名下的全部进程组
func (w *Worker) terminate() {
	w.quitOnce.Do(func() {
		close(w.quit)
	})
	w.killProcessGroups()
}

// join 等待Worker退出，超时返回false
func (w *Worker) join(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) killProcessGroups() {
	w.pgidMu.Lock()
	defer w.pgidMu.Unlock()
	for pgid := range w.pgids {
		log.Printf("worker %d: killing process group %d", w.id, pgid)
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			// 关停必须完成，进程组清理失败只记录不上抛
			log.Printf("worker %d: kill process group %d: %v", w.id, pgid, err)
		}
		delete(w.pgids, pgid)
	}
}

// main Worker主循环
func (w *Worker) main() {
	defer close(w.done)
	defer w.killProcessGroups()
	for {
		select {
		case <-w.quit:
			return
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			w.runTask(task)
		}
	}
}

// runTask 执行单个任务并投递结果
// 返回error或panic都包装为TaskError送回，绝不让Worker本身崩溃
func (w *Worker) runTask(task *Task) {
	defer func() {
		if r := recover(); r != nil {
			trace := string(debug.Stack())
			w.putResult(&taskResult{err: &TaskError{
				Message: fmt.Sprintf("panic in task: %v", r),
				Trace:   trace,
			}}, StatusException)
		}
	}()

	value, err := task.Run(w)
	if err != nil {
		var taskErr *TaskError
		if te, ok := err.(*TaskError); ok {
			taskErr = te
		} else {
			taskErr = &TaskError{Message: err.Error(), Trace: string(debug.Stack())}
		}
		w.putResult(&taskResult{err: taskErr}, StatusException)
		return
	}
	w.putResult(&taskResult{value: value}, StatusIdle)
}

// putResult 先在锁内更新状态，再投递结果
func (w *Worker) putResult(res *taskResult, status string) {
	w.statusMu.Lock()
	w.status = status
	w.statusMu.Unlock()

	select {
	case w.results <- res:
	case <-w.quit:
		// 队列正在关停，结果不再被消费
	}
}
