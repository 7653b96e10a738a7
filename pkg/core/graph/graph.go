// Package graph 提供有向图结构与循环检测
package graph

import (
	"sort"
)

// Node 有向图节点（对外导出）
// 节点按Name判等与排序，同一个图内Name必须唯一
type Node struct {
	Name string
	Outs []*Node // 出边指向的节点列表
}

// NewNode 创建节点实例（对外导出）
func NewNode(name string, outs []*Node) *Node {
	n := &Node{Name: name, Outs: make([]*Node, 0, len(outs))}
	n.Outs = append(n.Outs, outs...)
	n.sortOuts()
	return n
}

// AddOut 添加出边并保持有序
func (n *Node) AddOut(out *Node) {
	n.Outs = append(n.Outs, out)
	n.sortOuts()
}

func (n *Node) sortOuts() {
	sort.Slice(n.Outs, func(i, j int) bool {
		return n.Outs[i].Name < n.Outs[j].Name
	})
}

func (n *Node) String() string {
	return n.Name
}

// Graph 有向图结构（对外导出）
type Graph struct {
	Nodes []*Node // 按Name排序的节点列表
}

// NewGraph 创建图实例（对外导出）
func NewGraph(nodes []*Node) *Graph {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return &Graph{Nodes: sorted}
}

// FindCycle 查找图中的循环（对外导出）
// 按排序顺序从每个节点做DFS，维护全局visited集合避免重复遍历，
// 整体摊还复杂度为O(V+E)。
// 返回构成循环的节点路径，首尾为同一节点（如 [A, B, A]；自环为 [A, A]）。
// 无循环时返回nil。
func (g *Graph) FindCycle() []*Node {
	visited := make(map[string]bool)
	for _, node := range g.Nodes {
		if cycle := g.findCycleFromNode(node, visited, nil); cycle != nil {
			return cycle
		}
	}
	return nil
}

// findCycleFromNode 从指定节点出发做递归DFS查找循环
// path为当前搜索路径栈；若当前节点已出现在路径中，说明存在后向边，
// 返回从该节点回到自身的闭合子路径。
func (g *Graph) findCycleFromNode(node *Node, visited map[string]bool, path []*Node) []*Node {
	path = append(path, node)
	for i := 0; i < len(path)-1; i++ {
		if path[i].Name == node.Name {
			// 闭合循环：返回 path[i:] 形如 [A, ..., A]
			cycle := make([]*Node, len(path)-i)
			copy(cycle, path[i:])
			return cycle
		}
	}

	if visited[node.Name] {
		return nil
	}
	visited[node.Name] = true

	for _, out := range node.Outs {
		if cycle := g.findCycleFromNode(out, visited, path); cycle != nil {
			return cycle
		}
	}
	return nil
}
