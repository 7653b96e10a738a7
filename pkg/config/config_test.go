package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forgebuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
forgebuild:
  general:
    instance_name: ci-builder
  storage:
    database:
      type: postgres
      dsn: "host=db user=fb dbname=forgebuild"
  build:
    workers: 16
    skip_modules: [sysroot]
    modules:
      - name: sysroot
        build: "make sysroot"
      - name: toolchain
        deps: [sysroot]
        build: "make toolchain"
        install_path: "toolchains/{host}/bin"
        heavy: true
  test:
    configurations:
      21: [armeabi-v7a, x86]
      30: [arm64-v8a]
    cases:
      - name: test_malloc
        suite: libc
        api: 21
        abi: armeabi-v7a
        command: "/data/local/tmp/test_malloc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	fb := cfg.Forgebuild
	assert.Equal(t, "ci-builder", fb.General.InstanceName)
	assert.Equal(t, "postgres", cfg.GetDatabaseType())
	assert.Equal(t, 16, fb.Build.Workers)
	require.Len(t, fb.Build.Modules, 2)
	assert.Equal(t, []string{"sysroot"}, fb.Build.Modules[1].Deps)
	assert.Equal(t, "toolchains/{host}/bin", fb.Build.Modules[1].InstallPath)
	assert.True(t, fb.Build.Modules[1].Heavy)
	assert.Equal(t, []string{"armeabi-v7a", "x86"}, fb.Test.Configurations[21])
	require.Len(t, fb.Test.Cases, 1)
	assert.Equal(t, "libc", fb.Test.Cases[0].Suite)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, "forgebuild:\n  general: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	fb := cfg.Forgebuild
	assert.Equal(t, "forgebuild", fb.General.InstanceName)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "forgebuild.db", cfg.GetDatabaseDSN())
	assert.Equal(t, 4, fb.Test.WorkersPerDevice)
	assert.Equal(t, 10*time.Second, fb.Test.FlakeCooldown)
	assert.Equal(t, 8080, fb.Server.Port)
	assert.NotEmpty(t, fb.Schedule.CronExpr)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "forgebuild: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}
