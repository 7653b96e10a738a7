package fleet

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/forgebuild/pkg/core/workqueue"
)

func device(serial string, version int, abis []string) *Device {
	return &Device{
		Serial:    serial,
		Name:      "testdevice",
		Version:   version,
		Abis:      abis,
		BuildID:   "TEST001",
		IsRelease: true,
	}
}

func TestDevice_CanRunBuildConfig(t *testing.T) {
	d := device("s1", 30, []string{"arm64-v8a", "armeabi-v7a"})

	assert.True(t, d.CanRunBuildConfig(BuildConfig{API: 21, Abi: "arm64-v8a"}))
	assert.True(t, d.CanRunBuildConfig(BuildConfig{API: 30, Abi: "armeabi-v7a"}))
	// 设备太旧
	assert.False(t, d.CanRunBuildConfig(BuildConfig{API: 31, Abi: "arm64-v8a"}))
	// ABI不支持
	assert.False(t, d.CanRunBuildConfig(BuildConfig{API: 21, Abi: "x86_64"}))
}

func TestDeviceShardingGroup_ExactFieldMatch(t *testing.T) {
	g := NewDeviceShardingGroup(device("s1", 30, []string{"arm64-v8a"}))

	require.NoError(t, g.AddDevice(device("s2", 30, []string{"arm64-v8a"})))
	assert.Len(t, g.Devices, 2)

	// 版本不同
	assert.Error(t, g.AddDevice(device("s3", 29, []string{"arm64-v8a"})))
	// ABI列表不同
	assert.Error(t, g.AddDevice(device("s4", 30, []string{"arm64-v8a", "armeabi-v7a"})))
	// 模拟器标志不同
	emu := device("s5", 30, []string{"arm64-v8a"})
	emu.IsEmulator = true
	assert.Error(t, g.AddDevice(emu))
}

func TestDeviceShardingGroup_Shards(t *testing.T) {
	g := NewDeviceShardingGroup(device("s1", 30, []string{"arm64-v8a"}))
	require.NoError(t, g.AddDevice(device("s2", 30, []string{"arm64-v8a"})))

	var _ workqueue.ShardingGroup = g
	assert.Len(t, g.Shards(), 2)
}

func TestDeviceFleet_SlotsAndMissing(t *testing.T) {
	f := NewDeviceFleet(map[int][]string{
		21: {"armeabi-v7a", "x86"},
		30: {"arm64-v8a"},
	})

	assert.ElementsMatch(t, []string{"android-21 armeabi-v7a", "android-21 x86", "android-30 arm64-v8a"}, f.Missing())

	f.AddDevice(device("s1", 30, []string{"arm64-v8a"}))
	assert.ElementsMatch(t, []string{"android-21 armeabi-v7a", "android-21 x86"}, f.Missing())
	require.NotNil(t, f.DeviceGroup(30, "arm64-v8a"))

	// 不在期望配置内的API级别被忽略
	f.AddDevice(device("s2", 33, []string{"arm64-v8a"}))
	assert.Nil(t, f.DeviceGroup(33, "arm64-v8a"))
}

func TestDeviceFleet_NeverHoudini(t *testing.T) {
	f := NewDeviceFleet(map[int][]string{21: {"armeabi-v7a", "x86"}})

	// x86设备宣称支持armeabi（翻译层），绝不能占用armeabi槽位
	f.AddDevice(device("s1", 21, []string{"armeabi-v7a", "x86"}))
	assert.Nil(t, f.DeviceGroup(21, "armeabi-v7a"))
	require.NotNil(t, f.DeviceGroup(21, "x86"))
}

func TestDeviceFleet_PreferHardwareAndRelease(t *testing.T) {
	f := NewDeviceFleet(map[int][]string{30: {"arm64-v8a"}})

	emu := device("emu1", 30, []string{"arm64-v8a"})
	emu.IsEmulator = true
	f.AddDevice(emu)
	require.NotNil(t, f.DeviceGroup(30, "arm64-v8a"))
	assert.True(t, f.DeviceGroup(30, "arm64-v8a").IsEmulator)

	// 真机到来后替换模拟器分组
	f.AddDevice(device("hw1", 30, []string{"arm64-v8a"}))
	assert.False(t, f.DeviceGroup(30, "arm64-v8a").IsEmulator)

	// 预发布版不能反过来替换正式版
	pre := device("pre1", 30, []string{"arm64-v8a"})
	pre.IsRelease = false
	f.AddDevice(pre)
	assert.True(t, f.DeviceGroup(30, "arm64-v8a").IsRelease)
}

func TestDeviceFleet_UniqueDeviceGroups(t *testing.T) {
	f := NewDeviceFleet(map[int][]string{30: {"arm64-v8a", "armeabi-v7a"}})

	// 一台支持双ABI的真机占据两个槽位，但等价类只算一个
	d := device("s1", 30, []string{"arm64-v8a", "armeabi-v7a"})
	f.AddDevice(d)
	assert.Len(t, f.UniqueDeviceGroups(), 1)
}

func TestListDeviceSerials(t *testing.T) {
	adb := func(args ...string) (string, error) {
		return "List of devices attached\n" +
			"serial1\tdevice\n" +
			"serial2\toffline\n" +
			"serial3\tunauthorized\n" +
			"serial4\tdevice\n\n", nil
	}
	serials, err := ListDeviceSerials(adb)
	require.NoError(t, err)
	assert.Equal(t, []string{"serial1", "serial4"}, serials)
}

func TestDiscoverDevices(t *testing.T) {
	props := map[string]string{
		"probe1": "[ro.build.version.sdk]: [30]\n[ro.product.cpu.abilist]: [arm64-v8a,armeabi-v7a]\n" +
			"[ro.product.name]: [flame]\n[ro.build.id]: [RQ1A]\n[ro.build.version.codename]: [REL]\n[ro.debuggable]: [0]\n",
		"probe2": "[ro.build.version.sdk]: [21]\n[ro.product.cpu.abilist]: [x86]\n" +
			"[ro.product.name]: [generic_x86]\n[ro.build.id]: [LRX21M]\n[ro.build.characteristics]: [emulator]\n" +
			"[ro.build.version.codename]: [REL]\n[ro.debuggable]: [1]\n",
	}
	adb := func(args ...string) (string, error) {
		if args[0] == "devices" {
			return "List of devices attached\nprobe1\tdevice\nprobe2\tdevice\n", nil
		}
		if args[0] == "-s" {
			out, ok := props[args[1]]
			if !ok {
				return "", fmt.Errorf("unknown serial %s", args[1])
			}
			return out, nil
		}
		return "", fmt.Errorf("unexpected adb args: %v", args)
	}

	queue := workqueue.NewProcessPoolWorkQueue(2)
	defer func() {
		queue.Terminate()
		queue.Join()
	}()

	f, err := DiscoverDevices(queue, adb, map[int][]string{30: {"arm64-v8a"}, 21: {"x86"}})
	require.NoError(t, err)

	g30 := f.DeviceGroup(30, "arm64-v8a")
	require.NotNil(t, g30)
	assert.Equal(t, "flame", g30.Devices[0].Name)
	assert.False(t, g30.IsEmulator)
	assert.True(t, g30.IsRelease)

	g21 := f.DeviceGroup(21, "x86")
	require.NotNil(t, g21)
	assert.True(t, g21.IsEmulator)
	assert.True(t, g21.Devices[0].IsDebuggable)
}
