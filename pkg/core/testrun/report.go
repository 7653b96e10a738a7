package testrun

import "sort"

// SuiteResult 报告中的一条记录（对外导出）
type SuiteResult struct {
	Suite  string
	Result Result
}

// InfraSuite 无法归属具体用例的基础设施级失败所在的套件名（对外导出）
const InfraSuite = "<infrastructure>"

// Report 一轮测试的结果汇总（对外导出）
// 只在调度器的结果消费循环里单线程访问，不加锁
type Report struct {
	results []SuiteResult
}

// NewReport 创建空报告（对外导出）
func NewReport() *Report {
	return &Report{}
}

// AddResult 追加一条结果（对外导出）
func (r *Report) AddResult(suite string, result Result) {
	r.results = append(r.results, SuiteResult{Suite: suite, Result: result})
}

// All 全部结果（对外导出）
func (r *Report) All() []SuiteResult {
	return r.results
}

// BySuite 按套件分组，键升序可遍历（对外导出）
func (r *Report) BySuite() map[string][]Result {
	grouped := make(map[string][]Result)
	for _, sr := range r.results {
		grouped[sr.Suite] = append(grouped[sr.Suite], sr.Result)
	}
	return grouped
}

// Suites 出现过的套件名，升序（对外导出）
func (r *Report) Suites() []string {
	seen := make(map[string]bool)
	var suites []string
	for _, sr := range r.results {
		if !seen[sr.Suite] {
			seen[sr.Suite] = true
			suites = append(suites, sr.Suite)
		}
	}
	sort.Strings(suites)
	return suites
}

// NumTests 结果总数（对外导出）
func (r *Report) NumTests() int {
	return len(r.results)
}

// NumFailed 失败数（对外导出）
func (r *Report) NumFailed() int {
	n := 0
	for _, sr := range r.results {
		if sr.Result.Failed() {
			n++
		}
	}
	return n
}

// NumPassed 通过数（对外导出）
func (r *Report) NumPassed() int {
	n := 0
	for _, sr := range r.results {
		if sr.Result.Passed() {
			n++
		}
	}
	return n
}

// Successful 本轮是否全部通过（对外导出）
// 跳过不算失败
func (r *Report) Successful() bool {
	return r.NumFailed() == 0
}

// AllFailed 全部失败结果（对外导出）
func (r *Report) AllFailed() []Result {
	var failed []Result
	for _, sr := range r.results {
		if sr.Result.Failed() {
			failed = append(failed, sr.Result)
		}
	}
	return failed
}

// RemoveAllTrueFailures 摘除全部确定性失败并返回（对外导出）
// 留下的报告只含通过/跳过记录，用于失败日志补采等二次处理
func (r *Report) RemoveAllTrueFailures() []Result {
	var kept []SuiteResult
	var removed []Result
	for _, sr := range r.results {
		if sr.Result.Failed() {
			removed = append(removed, sr.Result)
			continue
		}
		kept = append(kept, sr)
	}
	r.results = kept
	return removed
}

// RemoveAllFailingFlaky 摘除疑似环境抖动的失败并返回（对外导出）
// 被摘除的结果不再计入报告，调用方负责重新调度
func (r *Report) RemoveAllFailingFlaky(isFlaky func(Result) bool) []Result {
	var kept []SuiteResult
	var removed []Result
	for _, sr := range r.results {
		if sr.Result.Failed() && isFlaky(sr.Result) {
			removed = append(removed, sr.Result)
			continue
		}
		kept = append(kept, sr)
	}
	r.results = kept
	return removed
}
