// Package plan 计算模块构建计划的并行层级
//
// 先用 deps.ProveAcyclic 做一次带路径报告的循环检测，确认无环后
// 再把边集交给 go-dag 计算Kahn拓扑层级：同一层内的模块可以并行构建。
package plan

import (
	"fmt"
	"sort"

	dag "github.com/begmaroman/go-dag"

	"github.com/stevelan1995/forgebuild/pkg/core/deps"
)

// planNode go-dag节点载体
type planNode struct {
	name string
}

// ID 实现go-dag的Identifiable接口
func (n *planNode) ID() string {
	return n.name
}

// Levels 计算构建计划的拓扑层级（对外导出）
// 返回的每一层内的模块名互不依赖，可并行构建；
// 第i+1层的模块只依赖前i层。层内按名称排序保证输出稳定。
func Levels(modules []deps.Module) ([][]string, error) {
	if err := deps.ProveAcyclic(modules); err != nil {
		return nil, err
	}

	d := dag.NewDAG[*planNode]()
	for _, m := range modules {
		if _, err := d.AddVertex(&planNode{name: m.Name()}); err != nil {
			return nil, fmt.Errorf("add vertex %q: %w", m.Name(), err)
		}
	}
	for _, m := range modules {
		for _, dep := range m.Deps() {
			// 边方向：依赖 -> 模块，层级顺序即构建顺序
			if err := d.AddEdge(dep, m.Name()); err != nil {
				return nil, fmt.Errorf("add edge %s -> %s: %w", dep, m.Name(), err)
			}
		}
	}

	// Kahn算法：反复摘除入度为0的节点，每一轮构成一层
	inDegree := make(map[string]int)
	for name := range d.GetVertices() {
		parents, err := d.GetParents(name)
		if err != nil {
			return nil, err
		}
		inDegree[name] = len(parents)
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	var levels [][]string
	for len(queue) > 0 {
		sort.Strings(queue)
		level := queue
		queue = nil
		for _, name := range level {
			children, err := d.GetChildren(name)
			if err != nil {
				return nil, err
			}
			for child := range children {
				inDegree[child]--
				if inDegree[child] == 0 {
					queue = append(queue, child)
				}
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}
