// Package deps 负责构建模块的依赖追踪与调度前沿计算
package deps

import (
	"fmt"
	"strings"

	"github.com/stevelan1995/forgebuild/pkg/core/graph"
)

// Module 依赖解析所需的最小模块契约（对外导出）
// 完整的构建能力由 build 包扩展
type Module interface {
	Name() string
	Deps() []string
}

// CyclicDependencyError 模块依赖图存在循环时的错误（对外导出）
type CyclicDependencyError struct {
	Cycle []string // 构成循环的模块名，首尾相同
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("detected cyclic dependency: %s", strings.Join(e.Cycle, " -> "))
}

// ProveAcyclic 证明模块依赖图无环，否则返回CyclicDependencyError（对外导出）
// 每个模块对应一个节点，边方向为 模块 -> 依赖
func ProveAcyclic(modules []Module) error {
	nodes := make(map[string]*graph.Node, len(modules))
	for _, m := range modules {
		nodes[m.Name()] = graph.NewNode(m.Name(), nil)
	}
	for _, m := range modules {
		for _, dep := range m.Deps() {
			depNode, ok := nodes[dep]
			if !ok {
				return fmt.Errorf("module %q depends on unknown module %q", m.Name(), dep)
			}
			nodes[m.Name()].AddOut(depNode)
		}
	}

	all := make([]*graph.Node, 0, len(nodes))
	for _, n := range nodes {
		all = append(all, n)
	}
	if cycle := graph.NewGraph(all).FindCycle(); cycle != nil {
		names := make([]string, 0, len(cycle))
		for _, n := range cycle {
			names = append(names, n.Name)
		}
		return &CyclicDependencyError{Cycle: names}
	}
	return nil
}

// DependencyManager 依赖管理器（对外导出）
//
// 根据依赖图计算模块的构建顺序：GetBuildable 返回当前不再等待任何
// 依赖的模块集合，每次 Complete 通知一个模块完成后前沿随之推进。
type DependencyManager struct {
	// buildable 就绪但尚未被取走的模块，键为模块名
	buildable map[string]Module

	// blocked 每个未就绪模块仍在等待的依赖名集合
	// 依赖完成后从对应集合中删除，集合清空即进入buildable
	blocked map[string]map[string]bool

	// dependents 反向索引：模块名 -> 依赖它的模块列表
	dependents map[string][]Module
}

// NewDependencyManager 创建依赖管理器（对外导出）
// 模块集合为空或存在循环依赖时返回错误，属于配置错误，
// 必须在任何构建任务派发之前失败。
func NewDependencyManager(modules []Module) (*DependencyManager, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("module list must not be empty")
	}
	if err := ProveAcyclic(modules); err != nil {
		return nil, err
	}

	m := &DependencyManager{
		buildable:  make(map[string]Module),
		blocked:    make(map[string]map[string]bool),
		dependents: make(map[string][]Module),
	}
	for _, mod := range modules {
		m.dependents[mod.Name()] = nil
	}
	for _, mod := range modules {
		if len(mod.Deps()) == 0 {
			m.buildable[mod.Name()] = mod
			continue
		}
		waiting := make(map[string]bool, len(mod.Deps()))
		for _, dep := range mod.Deps() {
			waiting[dep] = true
		}
		m.blocked[mod.Name()] = waiting
	}
	for _, mod := range modules {
		for _, dep := range mod.Deps() {
			m.dependents[dep] = append(m.dependents[dep], mod)
		}
	}
	return m, nil
}

// GetBuildable 取走当前就绪的模块集合（对外导出）
//
// 注意：本方法是"读取即清空"语义。返回的模块随即视为进行中，
// 再次调用将返回空集合，直到后续的 Complete 解锁新的模块。
// 调用方必须把返回的每一个模块都派发出去，否则这些模块会从调度
// 中静默丢失。
func (m *DependencyManager) GetBuildable() []Module {
	buildable := make([]Module, 0, len(m.buildable))
	for _, mod := range m.buildable {
		buildable = append(buildable, mod)
	}
	m.buildable = make(map[string]Module)
	return buildable
}

// NumBuildable 当前就绪且未被取走的模块数量
func (m *DependencyManager) NumBuildable() int {
	return len(m.buildable)
}

// HasOutstanding 是否仍有就绪或被阻塞的模块（对外导出）
// 构建驱动循环以此作为继续派发的条件
func (m *DependencyManager) HasOutstanding() bool {
	return len(m.buildable) > 0 || len(m.blocked) > 0
}

// Complete 通知指定模块已构建完成（对外导出）
// 将该模块名从所有依赖方的等待集合中删除；等待集合清空的依赖方
// 进入就绪集合。完成一个未知模块返回错误。
func (m *DependencyManager) Complete(module Module) error {
	dependents, ok := m.dependents[module.Name()]
	if !ok {
		return fmt.Errorf("completed unknown module %q", module.Name())
	}
	for _, dependent := range dependents {
		waiting := m.blocked[dependent.Name()]
		delete(waiting, module.Name())
		if len(waiting) > 0 {
			// 仍在等待其他依赖
			continue
		}
		delete(m.blocked, dependent.Name())
		m.buildable[dependent.Name()] = dependent
	}
	return nil
}
