// Package testrun 实现兼容性测试的调度、执行与结果汇总
package testrun

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	passLabel       = color.New(color.FgGreen).Sprint("PASS")
	failLabel       = color.New(color.FgRed).Sprint("FAIL")
	skipLabel       = color.New(color.FgYellow).Sprint("SKIP")
	knownFailLabel  = color.New(color.FgYellow).Sprint("KNOWN FAIL")
	shouldFailLabel = color.New(color.FgRed).Sprint("SHOULD FAIL")
)

// Result 单个测试的结果（对外导出）
// 五种结果：Success/Failure/Skipped/ExpectedFailure/UnexpectedSuccess
type Result interface {
	// Test 产生该结果的测试运行，基础设施级失败时可能为nil
	Test() *TestRun
	Passed() bool
	Failed() bool
	// String 渲染为带颜色标签的单行状态
	String() string
}

func testLabel(test *TestRun) string {
	if test == nil {
		return "<unknown test>"
	}
	return fmt.Sprintf("%s [%s]", test.Name(), test.Config())
}

// Success 测试通过（对外导出）
type Success struct {
	test *TestRun
}

// NewSuccess 创建通过结果（对外导出）
func NewSuccess(test *TestRun) *Success {
	return &Success{test: test}
}

func (r *Success) Test() *TestRun { return r.test }
func (r *Success) Passed() bool   { return true }
func (r *Success) Failed() bool   { return false }
func (r *Success) String() string {
	return fmt.Sprintf("%s %s", passLabel, testLabel(r.test))
}

// Failure 测试失败（对外导出）
// Message可在日志收集阶段追加设备日志
type Failure struct {
	test     *TestRun
	Message  string
	ReproCmd string
}

// NewFailure 创建失败结果（对外导出）
func NewFailure(test *TestRun, message, reproCmd string) *Failure {
	return &Failure{test: test, Message: message, ReproCmd: reproCmd}
}

func (r *Failure) Test() *TestRun { return r.test }
func (r *Failure) Passed() bool   { return false }
func (r *Failure) Failed() bool   { return true }
func (r *Failure) String() string {
	repro := ""
	if r.ReproCmd != "" {
		repro = " " + r.ReproCmd
	}
	return fmt.Sprintf("%s %s:%s\n%s", failLabel, testLabel(r.test), repro, r.Message)
}

// Skipped 测试被跳过（对外导出）
type Skipped struct {
	test   *TestRun
	Reason string
}

// NewSkipped 创建跳过结果（对外导出）
func NewSkipped(test *TestRun, reason string) *Skipped {
	return &Skipped{test: test, Reason: reason}
}

func (r *Skipped) Test() *TestRun { return r.test }
func (r *Skipped) Passed() bool   { return false }
func (r *Skipped) Failed() bool   { return false }
func (r *Skipped) String() string {
	return fmt.Sprintf("%s %s: %s", skipLabel, testLabel(r.test), r.Reason)
}

// ExpectedFailure 已知破损配置下的失败，视为通过（对外导出）
type ExpectedFailure struct {
	test         *TestRun
	Message      string
	BrokenConfig string
	Bug          string
}

// NewExpectedFailure 创建已知失败结果（对外导出）
func NewExpectedFailure(test *TestRun, message, brokenConfig, bug string) *ExpectedFailure {
	return &ExpectedFailure{test: test, Message: message, BrokenConfig: brokenConfig, Bug: bug}
}

func (r *ExpectedFailure) Test() *TestRun { return r.test }
func (r *ExpectedFailure) Passed() bool   { return true }
func (r *ExpectedFailure) Failed() bool   { return false }
func (r *ExpectedFailure) String() string {
	return fmt.Sprintf("%s %s: known failure for %s (%s): %s",
		knownFailLabel, testLabel(r.test), r.BrokenConfig, r.Bug, r.Message)
}

// UnexpectedSuccess 已知破损配置下却通过，视为失败（对外导出）
type UnexpectedSuccess struct {
	test         *TestRun
	BrokenConfig string
	Bug          string
}

// NewUnexpectedSuccess 创建意外通过结果（对外导出）
func NewUnexpectedSuccess(test *TestRun, brokenConfig, bug string) *UnexpectedSuccess {
	return &UnexpectedSuccess{test: test, BrokenConfig: brokenConfig, Bug: bug}
}

func (r *UnexpectedSuccess) Test() *TestRun { return r.test }
func (r *UnexpectedSuccess) Passed() bool   { return false }
func (r *UnexpectedSuccess) Failed() bool   { return true }
func (r *UnexpectedSuccess) String() string {
	return fmt.Sprintf("%s %s: %s passed unexpectedly for %s",
		shouldFailLabel, testLabel(r.test), r.Bug, r.BrokenConfig)
}
