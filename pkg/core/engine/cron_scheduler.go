package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// CronScheduler 定时触发完整的构建+测试流水（对外导出）
type CronScheduler struct {
	cron   *cron.Cron
	engine *Engine
	entry  cron.EntryID
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(eng *Engine) *CronScheduler {
	return &CronScheduler{
		cron:   cron.New(),
		engine: eng,
	}
}

// Register 按配置注册定时流水（对外导出）
func (cs *CronScheduler) Register() error {
	schedule := cs.engine.Config().Forgebuild.Schedule
	if !schedule.Enabled {
		return fmt.Errorf("scheduled runs are not enabled")
	}
	if _, err := cron.ParseStandard(schedule.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpr, err)
	}

	entry, err := cs.cron.AddFunc(schedule.CronExpr, cs.trigger)
	if err != nil {
		return fmt.Errorf("register scheduled run: %w", err)
	}
	cs.entry = entry
	log.Printf("scheduled runs registered: %s", schedule.CronExpr)
	return nil
}

// trigger 一次定时流水：先构建，构建成功且有用例再测试
func (cs *CronScheduler) trigger() {
	ctx := context.Background()

	run, err := cs.engine.BuildOnce(ctx)
	if err != nil {
		log.Printf("scheduled build %s failed: %v", run.ID, err)
		return
	}
	log.Printf("scheduled build %s succeeded", run.ID)

	if len(cs.engine.Config().Forgebuild.Test.Cases) == 0 {
		return
	}
	testRun, err := cs.engine.RunTests(ctx)
	if err != nil {
		log.Printf("scheduled tests %s failed: %v", testRun.ID, err)
		return
	}
	log.Printf("scheduled tests %s finished: %s", testRun.ID, testRun.Status)
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
}

// Stop 停止定时调度器，等待在途流水结束（对外导出）
func (cs *CronScheduler) Stop() {
	<-cs.cron.Stop().Done()
}
