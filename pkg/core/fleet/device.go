// Package fleet 管理测试设备队列：发现、分组与兼容性匹配
package fleet

import (
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// BuildConfig 测试产物的构建配置（对外导出）
// 决定一个测试能在哪些设备上运行
type BuildConfig struct {
	API int    `yaml:"api" json:"api"`
	Abi string `yaml:"abi" json:"abi"`
}

func (c BuildConfig) String() string {
	return fmt.Sprintf("%s-%d", c.Abi, c.API)
}

// Device 一台已连接的测试设备（对外导出）
type Device struct {
	Serial       string   `json:"serial"`
	Name         string   `json:"name"`
	Version      int      `json:"version"` // API级别
	Abis         []string `json:"abis"`    // 升序排列
	BuildID      string   `json:"build_id"`
	IsEmulator   bool     `json:"is_emulator"`
	IsRelease    bool     `json:"is_release"`
	IsDebuggable bool     `json:"is_debuggable"`
}

func (d *Device) String() string {
	return fmt.Sprintf("android-%d %s %s %s", d.Version, d.Name, d.Serial, d.BuildID)
}

// CanRunBuildConfig 设备能否运行指定构建配置（对外导出）
// 版本过老或ABI不支持都不行
func (d *Device) CanRunBuildConfig(config BuildConfig) bool {
	if d.Version < config.API {
		// 设备系统太旧
		return false
	}
	for _, abi := range d.Abis {
		if abi == config.Abi {
			return true
		}
	}
	return false
}

// AdbRunner 执行adb命令并返回标准输出（对外导出）
// 作为函数变量注入，测试中可打桩
type AdbRunner func(args ...string) (string, error)

// DefaultAdbRunner 调用本机adb二进制（对外导出）
func DefaultAdbRunner(args ...string) (string, error) {
	out, err := exec.Command("adb", args...).Output()
	if err != nil {
		return "", fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// ListDeviceSerials 列出当前连接的设备序列号（对外导出）
// 跳过offline与unauthorized的设备
func ListDeviceSerials(adb AdbRunner) ([]string, error) {
	out, err := adb("devices")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var serials []string
	lines := strings.Split(out, "\n")
	// 首行是"List of devices attached"，跳过
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := regexp.MustCompile(`\s+`).Split(line, 2)
		serial := fields[0]
		if strings.Contains(line, "offline") {
			log.Printf("ignoring offline device: %s", serial)
			continue
		}
		if strings.Contains(line, "unauthorized") {
			log.Printf("ignoring unauthorized device: %s", serial)
			continue
		}
		serials = append(serials, serial)
	}
	return serials, nil
}

// ProbeDevice 读取设备属性并构造Device（对外导出）
// getprop全量拉取一次后就地解析，避免多轮往返
func ProbeDevice(adb AdbRunner, serial string) (*Device, error) {
	out, err := adb("-s", serial, "shell", "getprop")
	if err != nil {
		return nil, fmt.Errorf("probe device %s: %w", serial, err)
	}
	props := parseProps(out)

	version, err := strconv.Atoi(props["ro.build.version.sdk"])
	if err != nil {
		return nil, fmt.Errorf("device %s: bad sdk version %q", serial, props["ro.build.version.sdk"])
	}

	var abis []string
	for _, abi := range strings.Split(props["ro.product.cpu.abilist"], ",") {
		abi = strings.TrimSpace(abi)
		if abi != "" {
			abis = append(abis, abi)
		}
	}
	sort.Strings(abis)

	debuggable := props["ro.debuggable"] != "" && props["ro.debuggable"] != "0"

	return &Device{
		Serial:       serial,
		Name:         props["ro.product.name"],
		Version:      version,
		Abis:         abis,
		BuildID:      props["ro.build.id"],
		IsEmulator:   props["ro.build.characteristics"] == "emulator",
		IsRelease:    props["ro.build.version.codename"] == "REL",
		IsDebuggable: debuggable,
	}, nil
}

// parseProps 解析getprop输出：[key]: [value]
func parseProps(out string) map[string]string {
	props := make(map[string]string)
	re := regexp.MustCompile(`^\[([^\]]+)\]:\s*\[([^\]]*)\]$`)
	for _, line := range strings.Split(out, "\n") {
		if m := re.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			props[m[1]] = m[2]
		}
	}
	return props
}
