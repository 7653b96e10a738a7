// Package build 定义构建模块契约与依赖驱动的构建循环
package build

import (
	"strings"

	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

// Module 构建模块契约（对外导出）
// 在依赖解析契约（Name/Deps）之上扩展构建与安装能力。
// Build/Install返回的error由构建驱动作为该模块的失败处理，
// 不会作为进程崩溃向上传播。
type Module interface {
	Name() string
	Deps() []string
	// Build 执行模块构建，Worker用于状态上报和外部命令登记
	Build(w *workqueue.Worker) error
	// Install 把构建产物安装到输出目录
	Install(w *workqueue.Worker) error
}

// ModuleSpec 模块的纯数据描述（对外导出）
// 安装路径等派生字段不做惰性属性计算，统一由纯函数解析
type ModuleSpec struct {
	Name                string   `yaml:"name"`
	Deps                []string `yaml:"deps"`
	InstallPathTemplate string   `yaml:"install_path"` // 可包含{host}占位符
}

// ResolveInstallPath 解析模块在指定宿主平台下的安装路径（对外导出）
func ResolveInstallPath(spec ModuleSpec, host string) string {
	return strings.ReplaceAll(spec.InstallPathTemplate, "{host}", host)
}

// FuncModule 以显式函数组装的模块实现（对外导出）
//
// 模块列表由调用方静态构造后传入调度器，不存在隐式的全局注册表。
type FuncModule struct {
	Spec        ModuleSpec
	BuildFunc   func(w *workqueue.Worker) error
	InstallFunc func(w *workqueue.Worker) error
}

// NewFuncModule 创建函数式模块（对外导出）
func NewFuncModule(spec ModuleSpec, buildFn, installFn func(w *workqueue.Worker) error) *FuncModule {
	return &FuncModule{Spec: spec, BuildFunc: buildFn, InstallFunc: installFn}
}

func (m *FuncModule) Name() string   { return m.Spec.Name }
func (m *FuncModule) Deps() []string { return m.Spec.Deps }

func (m *FuncModule) Build(w *workqueue.Worker) error {
	if m.BuildFunc == nil {
		return nil
	}
	return m.BuildFunc(w)
}

func (m *FuncModule) Install(w *workqueue.Worker) error {
	if m.InstallFunc == nil {
		return nil
	}
	return m.InstallFunc(w)
}
