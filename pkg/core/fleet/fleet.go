package fleet

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

// DeviceShardingGroup 可互换设备的等价类（对外导出）
//
// 两台设备属于同一组当且仅当版本、ABI列表、模拟器/正式版/可调试
// 标志全部一致。组内任意分片跑同一个测试结果可比，因此一个组
// 作为分片队列的一个路由目标。
type DeviceShardingGroup struct {
	Devices      []*Device
	Abis         []string
	Version      int
	IsEmulator   bool
	IsRelease    bool
	IsDebuggable bool
}

// NewDeviceShardingGroup 以首台设备创建分组（对外导出）
func NewDeviceShardingGroup(first *Device) *DeviceShardingGroup {
	abis := make([]string, len(first.Abis))
	copy(abis, first.Abis)
	sort.Strings(abis)
	return &DeviceShardingGroup{
		Devices:      []*Device{first},
		Abis:         abis,
		Version:      first.Version,
		IsEmulator:   first.IsEmulator,
		IsRelease:    first.IsRelease,
		IsDebuggable: first.IsDebuggable,
	}
}

func (g *DeviceShardingGroup) String() string {
	return fmt.Sprintf("android-%d %s", g.Version, strings.Join(g.Abis, " "))
}

// Name 分组的路由标识，实现workqueue.ShardingGroup（对外导出）
// 字段全部参与，保证不同等价类不会撞名
func (g *DeviceShardingGroup) Name() string {
	return fmt.Sprintf("android-%d %s emulator=%v release=%v debuggable=%v",
		g.Version, strings.Join(g.Abis, ","), g.IsEmulator, g.IsRelease, g.IsDebuggable)
}

// Shards 组内分片即设备，实现workqueue.ShardingGroup（对外导出）
func (g *DeviceShardingGroup) Shards() []any {
	shards := make([]any, len(g.Devices))
	for i, d := range g.Devices {
		shards[i] = d
	}
	return shards
}

// DeviceMatches 设备是否属于本组（对外导出）
func (g *DeviceShardingGroup) DeviceMatches(device *Device) bool {
	if g.Version != device.Version {
		return false
	}
	abis := make([]string, len(device.Abis))
	copy(abis, device.Abis)
	sort.Strings(abis)
	if len(abis) != len(g.Abis) {
		return false
	}
	for i := range abis {
		if abis[i] != g.Abis[i] {
			return false
		}
	}
	if g.IsEmulator != device.IsEmulator {
		return false
	}
	if g.IsRelease != device.IsRelease {
		return false
	}
	if g.IsDebuggable != device.IsDebuggable {
		return false
	}
	return true
}

// AddDevice 向组内追加匹配设备（对外导出）
// 不匹配的设备属于配置错误，返回error；组从不与其他组合并
func (g *DeviceShardingGroup) AddDevice(device *Device) error {
	if !g.DeviceMatches(device) {
		return fmt.Errorf("%s does not match device group %s", device, g)
	}
	g.Devices = append(g.Devices, device)
	return nil
}

// DeviceFleet 测试设备队列（对外导出）
// 以 API级别 x ABI 为槽位，每个槽位最多容纳一个分组
type DeviceFleet struct {
	// devices API级别 -> ABI -> 分组（nil表示槽位空缺）
	devices map[int]map[string]*DeviceShardingGroup
}

// NewDeviceFleet 按期望的测试配置创建设备队列（对外导出）
// testConfigurations: API级别 -> 该级别需要测试的ABI列表
func NewDeviceFleet(testConfigurations map[int][]string) *DeviceFleet {
	f := &DeviceFleet{devices: make(map[int]map[string]*DeviceShardingGroup)}
	for api, abis := range testConfigurations {
		f.devices[api] = make(map[string]*DeviceShardingGroup)
		for _, abi := range abis {
			f.devices[api][abi] = nil
		}
	}
	return f
}

// AddDevice 将设备填入合适的槽位（对外导出）
func (f *DeviceFleet) AddDevice(device *Device) {
	sameVersion, ok := f.devices[device.Version]
	if !ok {
		log.Printf("ignoring device for unwanted API level: %s", device)
		return
	}

	for abi, currentGroup := range sameVersion {
		if !deviceHasAbi(device, abi) {
			continue
		}

		// 绝不通过x86的ARM翻译层跑ARM专属代码
		if strings.HasPrefix(abi, "armeabi") && deviceHasAbi(device, "x86") {
			continue
		}

		// 有总比没有强
		if currentGroup == nil {
			sameVersion[abi] = NewDeviceShardingGroup(device)
			continue
		}

		if currentGroup.DeviceMatches(device) {
			// AddDevice对已匹配设备不会失败
			_ = currentGroup.AddDevice(device)
			continue
		}

		// 模拟器镜像会随时间变化，真机更可信
		if currentGroup.IsEmulator && !device.IsEmulator {
			sameVersion[abi] = NewDeviceShardingGroup(device)
		}

		// 正式版优先于预发布版，但预发布版有时是唯一选择，不拒收
		if !currentGroup.IsRelease && device.IsRelease {
			sameVersion[abi] = NewDeviceShardingGroup(device)
		}
	}
}

// UniqueDeviceGroups 去重后的全部分组（对外导出）
// 同一分组可能占据多个ABI槽位，按路由标识+成员序列号去重
func (f *DeviceFleet) UniqueDeviceGroups() []*DeviceShardingGroup {
	seen := make(map[string]bool)
	var groups []*DeviceShardingGroup
	for _, version := range f.Versions() {
		for _, abi := range f.Abis(version) {
			group := f.DeviceGroup(version, abi)
			if group == nil {
				continue
			}
			key := group.Name()
			for _, d := range group.Devices {
				key += "|" + d.Serial
			}
			if !seen[key] {
				seen[key] = true
				groups = append(groups, group)
			}
		}
	}
	return groups
}

// DeviceGroup 指定API与ABI槽位上的分组（对外导出）
func (f *DeviceFleet) DeviceGroup(version int, abi string) *DeviceShardingGroup {
	sameVersion, ok := f.devices[version]
	if !ok {
		return nil
	}
	return sameVersion[abi]
}

// Missing 尚无可用设备的期望配置（对外导出）
func (f *DeviceFleet) Missing() []string {
	var missing []string
	for _, version := range f.Versions() {
		for _, abi := range f.Abis(version) {
			if f.devices[version][abi] == nil {
				missing = append(missing, fmt.Sprintf("android-%d %s", version, abi))
			}
		}
	}
	return missing
}

// MissingConfigs 尚无可用设备的期望配置，结构化形式（对外导出）
func (f *DeviceFleet) MissingConfigs() []BuildConfig {
	var missing []BuildConfig
	for _, version := range f.Versions() {
		for _, abi := range f.Abis(version) {
			if f.devices[version][abi] == nil {
				missing = append(missing, BuildConfig{API: version, Abi: abi})
			}
		}
	}
	return missing
}

// Versions 队列覆盖的全部API级别，升序（对外导出）
func (f *DeviceFleet) Versions() []int {
	versions := make([]int, 0, len(f.devices))
	for v := range f.devices {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Abis 指定API级别下的全部ABI，升序（对外导出）
func (f *DeviceFleet) Abis(version int) []string {
	abis := make([]string, 0, len(f.devices[version]))
	for abi := range f.devices[version] {
		abis = append(abis, abi)
	}
	sort.Strings(abis)
	return abis
}

func deviceHasAbi(device *Device, abi string) bool {
	for _, a := range device.Abis {
		if a == abi {
			return true
		}
	}
	return false
}

// DiscoverDevices 并行探测全部已连接设备并填入队列（对外导出）
// 每台设备一个探测任务：getprop全量拉取相当耗时，并行摊平成本
func DiscoverDevices(queue workqueue.WorkQueue, adb AdbRunner, testConfigurations map[int][]string) (*DeviceFleet, error) {
	serials, err := ListDeviceSerials(adb)
	if err != nil {
		return nil, err
	}

	for _, serial := range serials {
		serial := serial
		queue.AddTask(func(w *workqueue.Worker) (any, error) {
			w.SetStatus(fmt.Sprintf("Probing %s", serial))
			return ProbeDevice(adb, serial)
		})
	}

	fleet := NewDeviceFleet(testConfigurations)
	for !queue.Finished() {
		value, err := queue.GetResult()
		if err != nil {
			return nil, fmt.Errorf("device probe failed: %w", err)
		}
		fleet.AddDevice(value.(*Device))
	}
	return fleet, nil
}
