// Package handler HTTP API处理器
package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stevelan1995/forgebuild/pkg/api/dto"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
	"github.com/stevelan1995/forgebuild/pkg/report/html"
	"github.com/stevelan1995/forgebuild/pkg/storage"
)

// RunHandler 运行历史与触发API处理器
type RunHandler struct {
	engine *engine.Engine
}

// NewRunHandler 创建RunHandler
func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// List 列出运行历史
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	runs, err := h.engine.Repository().ListRuns(ctx, query.GetDefaultLimit())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行历史失败: %v", err)))
		return
	}

	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		if query.Kind != "" && run.Kind != query.Kind {
			continue
		}
		items = append(items, toRunSummary(run))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取运行详情
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	detail := dto.RunDetail{RunSummary: toRunSummary(run)}
	for _, m := range run.ModuleResults {
		detail.Modules = append(detail.Modules, dto.ModuleResultItem{
			Module:  m.Module,
			Success: m.Success,
			Log:     m.Log,
			Elapsed: m.Elapsed.String(),
		})
	}
	for _, t := range run.TestResults {
		detail.Tests = append(detail.Tests, dto.TestResultItem{
			Suite:   t.Suite,
			Name:    t.Name,
			Config:  t.Config,
			Outcome: t.Outcome,
			Detail:  t.Detail,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
}

// Report 渲染运行的HTML报告
// GET /api/v1/runs/:id/report
func (h *RunHandler) Report(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := html.WriteSummary(c.Writer, run); err != nil {
		log.Printf("render report for %s: %v", run.ID, err)
	}
}

// Delete 删除运行记录
// DELETE /api/v1/runs/:id
func (h *RunHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.engine.Repository().DeleteRun(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("删除失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "运行记录已删除",
		"id":      id,
	}))
}

// Plan 返回按依赖分层的构建计划
// GET /api/v1/plan
func (h *RunHandler) Plan(c *gin.Context) {
	levels, err := h.engine.PlanLevels()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("构建计划不可行: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PlanResponse{Levels: levels}))
}

// TriggerBuild 触发一轮构建（异步）
// POST /api/v1/runs/build
func (h *RunHandler) TriggerBuild(c *gin.Context) {
	go func() {
		if _, err := h.engine.BuildOnce(context.Background()); err != nil {
			log.Printf("triggered build failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.TriggerResponse{
		Status:  storage.RunStatusRunning,
		Message: "构建已启动，进度见/ws/progress，结果见运行历史",
	}))
}

// TriggerTests 触发一轮测试（异步）
// POST /api/v1/runs/test
func (h *RunHandler) TriggerTests(c *gin.Context) {
	go func() {
		if _, err := h.engine.RunTests(context.Background()); err != nil {
			log.Printf("triggered tests failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.TriggerResponse{
		Status:  storage.RunStatusRunning,
		Message: "测试已启动，进度见/ws/progress，结果见运行历史",
	}))
}

// Status 引擎当前活动
// GET /api/v1/status
func (h *RunHandler) Status(c *gin.Context) {
	activity := h.engine.Activity()
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.StatusResponse{
		State:   activity.State,
		RunID:   activity.RunID,
		Version: engine.Version,
	}))
}

// Health 健康检查
// GET /health
func (h *RunHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.HealthResponse{
		Status:    "ok",
		Version:   engine.Version,
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}

func (h *RunHandler) loadRun(c *gin.Context) (*storage.Run, bool) {
	ctx := c.Request.Context()
	id := c.Param("id")

	run, err := h.engine.Repository().GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("运行不存在: %v", err)))
		return nil, false
	}
	return run, true
}

func toRunSummary(run *storage.Run) dto.RunSummary {
	summary := dto.RunSummary{
		ID:           run.ID,
		Kind:         run.Kind,
		Status:       run.Status,
		StartedAt:    run.StartTime,
		ErrorMessage: run.ErrorMessage,
	}
	if !run.EndTime.IsZero() {
		end := run.EndTime
		summary.FinishedAt = &end
		summary.Duration = end.Sub(run.StartTime).Round(time.Second).String()
	}
	return summary
}
