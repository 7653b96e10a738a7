package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// RunSummary 运行摘要信息
type RunSummary struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunDetail 运行详细信息
type RunDetail struct {
	RunSummary
	Modules []ModuleResultItem `json:"modules,omitempty"`
	Tests   []TestResultItem   `json:"tests,omitempty"`
}

// ModuleResultItem 单个模块的构建结果
type ModuleResultItem struct {
	Module  string `json:"module"`
	Success bool   `json:"success"`
	Log     string `json:"log,omitempty"`
	Elapsed string `json:"elapsed"`
}

// TestResultItem 单个测试的结果
type TestResultItem struct {
	Suite   string `json:"suite"`
	Name    string `json:"name"`
	Config  string `json:"config,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// TriggerResponse 触发运行的响应
type TriggerResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PlanResponse 构建计划响应
type PlanResponse struct {
	Levels [][]string `json:"levels"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse 引擎活动状态响应
type StatusResponse struct {
	State   string `json:"state"`
	RunID   string `json:"run_id,omitempty"`
	Version string `json:"version"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}
