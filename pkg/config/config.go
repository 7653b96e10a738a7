// Package config forgebuild的YAML配置
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModuleConfig 一个构建模块的声明（对外导出）
type ModuleConfig struct {
	Name        string   `yaml:"name"`
	Deps        []string `yaml:"deps"`
	BuildCmd    string   `yaml:"build"`
	InstallCmd  string   `yaml:"install"`
	InstallPath string   `yaml:"install_path"` // 可含{host}占位符
	// Heavy 重型模块：单个就能吃满机器，任意时刻至多一个在构建
	Heavy bool `yaml:"heavy"`
}

// TestCaseConfig 一个测试用例的声明（对外导出）
type TestCaseConfig struct {
	Name    string `yaml:"name"`
	Suite   string `yaml:"suite"`
	API     int    `yaml:"api"`
	Abi     string `yaml:"abi"`
	Command string `yaml:"command"` // 设备上执行的shell命令
}

// Config forgebuild配置（对外导出）
type Config struct {
	Forgebuild struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Host         string `yaml:"host"` // 构建宿主标识，如linux-x86_64
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Build struct {
			Workers int `yaml:"workers"` // <=0取CPU核数
			// Serial 调试模式：任务在取结果时同步执行，排查并发问题用
			Serial      bool           `yaml:"serial"`
			SkipModules []string       `yaml:"skip_modules"`
			Modules     []ModuleConfig `yaml:"modules"`
		} `yaml:"build"`
		Test struct {
			WorkersPerDevice int           `yaml:"workers_per_device"`
			FlakeCooldown    time.Duration `yaml:"flake_cooldown"`
			// Configurations API级别 -> 期望测试的ABI列表
			Configurations map[int][]string `yaml:"configurations"`
			Cases          []TestCaseConfig `yaml:"cases"`
		} `yaml:"test"`
		Server struct {
			Port int `yaml:"port"`
		} `yaml:"server"`
		Schedule struct {
			Enabled  bool   `yaml:"enabled"`
			CronExpr string `yaml:"cron_expr"`
		} `yaml:"schedule"`
	} `yaml:"forgebuild"`
}

// Load 从文件读取配置并应用默认值（对外导出）
// 文件不存在时回退到全默认配置，开箱即用；文件存在但不合法仍报错
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default 全默认值配置（对外导出）
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 应用默认值（对外导出）
func (c *Config) ApplyDefaults() {
	fb := &c.Forgebuild

	if fb.General.InstanceName == "" {
		fb.General.InstanceName = "forgebuild"
	}
	if fb.General.LogLevel == "" {
		fb.General.LogLevel = "info"
	}
	if fb.General.Host == "" {
		fb.General.Host = "linux-x86_64"
	}

	if fb.Storage.Database.Type == "" {
		fb.Storage.Database.Type = "sqlite"
	}
	if fb.Storage.Database.DSN == "" {
		fb.Storage.Database.DSN = "forgebuild.db"
	}
	if fb.Storage.Database.MaxOpenConns <= 0 {
		fb.Storage.Database.MaxOpenConns = 10
	}
	if fb.Storage.Database.MaxIdleConns <= 0 {
		fb.Storage.Database.MaxIdleConns = 5
	}
	if fb.Storage.Database.ConnMaxLifetime <= 0 {
		fb.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}

	if fb.Test.WorkersPerDevice <= 0 {
		fb.Test.WorkersPerDevice = 4
	}
	if fb.Test.FlakeCooldown <= 0 {
		fb.Test.FlakeCooldown = 10 * time.Second
	}

	if fb.Server.Port <= 0 {
		fb.Server.Port = 8080
	}
	if fb.Schedule.CronExpr == "" {
		// 每天凌晨两点跑全量构建+测试
		fb.Schedule.CronExpr = "0 2 * * *"
	}
}

// GetDatabaseType 数据库类型（对外导出）
func (c *Config) GetDatabaseType() string {
	return c.Forgebuild.Storage.Database.Type
}

// GetDatabaseDSN 数据库DSN（对外导出）
func (c *Config) GetDatabaseDSN() string {
	return c.Forgebuild.Storage.Database.DSN
}
