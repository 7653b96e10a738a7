// Package api 装配HTTP路由
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/stevelan1995/forgebuild/pkg/api/handler"
	"github.com/stevelan1995/forgebuild/pkg/core/engine"
)

// NewRouter 创建带全部路由的gin引擎（对外导出）
func NewRouter(eng *engine.Engine) *gin.Engine {
	router := gin.Default()

	runs := handler.NewRunHandler(eng)
	progress := handler.NewProgressHandler(eng.Bus())

	router.GET("/health", runs.Health)
	router.GET("/ws/progress", progress.Stream)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", runs.Status)
		v1.GET("/plan", runs.Plan)
		v1.GET("/runs", runs.List)
		v1.GET("/runs/:id", runs.Get)
		v1.GET("/runs/:id/report", runs.Report)
		v1.DELETE("/runs/:id", runs.Delete)
		v1.POST("/runs/build", runs.TriggerBuild)
		v1.POST("/runs/test", runs.TriggerTests)
	}
	return router
}
