// Package config 管理 subimage 的持久化配置
//
// 优先级：默认值 < 配置文件 < 环境变量（含 .env 文件）< 命令行参数。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zoeyai/subimage/pkg/batch"
	"github.com/zoeyai/subimage/pkg/render"
	"github.com/zoeyai/subimage/pkg/vision"
	"github.com/zoeyai/subimage/pkg/vision/cv"
)

// MatchConfig 定位参数
type MatchConfig struct {
	Detector        string  `json:"detector"`
	MaxFeatures     int     `json:"max_features"`
	Ratio           float64 `json:"ratio"`
	MinMatches      int     `json:"min_matches"`
	RansacThreshold float64 `json:"ransac_threshold"`
	MaxIterations   int     `json:"max_iterations"`
	Confidence      float64 `json:"confidence"`
	Seed            int64   `json:"seed"`
	AlphaThreshold  int     `json:"alpha_threshold"`
	Fallback        bool    `json:"fallback"`
}

// BatchConfig 批处理参数
type BatchConfig struct {
	Workers    int      `json:"workers"` // <=0 时使用逻辑 CPU 数量
	Extensions []string `json:"extensions"`
}

// OutputConfig 输出参数
type OutputConfig struct {
	JSON        bool         `json:"json"`
	DrawMatches bool         `json:"draw_matches"`
	Database    string       `json:"database"` // 为空时不写 SQLite
	Style       render.Style `json:"style"`
}

// LoggingConfig 日志参数
type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    string `json:"file"`
}

// Config 完整配置
type Config struct {
	Match   MatchConfig   `json:"match"`
	Batch   BatchConfig   `json:"batch"`
	Output  OutputConfig  `json:"output"`
	Logging LoggingConfig `json:"logging"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	d := vision.DefaultOptions
	return &Config{
		Match: MatchConfig{
			Detector:        string(d.Detector),
			MaxFeatures:     d.MaxFeatures,
			Ratio:           d.Ratio,
			MinMatches:      d.MinMatches,
			RansacThreshold: d.RansacThreshold,
			MaxIterations:   d.MaxIterations,
			Confidence:      d.Confidence,
			Seed:            d.Seed,
			AlphaThreshold:  int(d.AlphaThreshold),
			Fallback:        d.EnableFallback,
		},
		Batch: BatchConfig{
			Extensions: append([]string(nil), batch.DefaultExtensions...),
		},
		Output: OutputConfig{
			Style: render.DefaultStyle,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Options 转换为定位配置并校验
func (m MatchConfig) Options() (vision.Options, error) {
	kind, err := cv.ParseDetectorKind(m.Detector)
	if err != nil {
		return vision.Options{}, &vision.Error{Kind: vision.ErrInvalidConfiguration, Message: "detector 无效", Cause: err}
	}
	if m.AlphaThreshold < 0 || m.AlphaThreshold > 255 {
		return vision.Options{}, &vision.Error{
			Kind:    vision.ErrInvalidConfiguration,
			Message: fmt.Sprintf("alpha_threshold 必须在 [0, 255] 范围内: %d", m.AlphaThreshold),
		}
	}
	opts := vision.Options{
		Detector:        kind,
		MaxFeatures:     m.MaxFeatures,
		Ratio:           m.Ratio,
		MinMatches:      m.MinMatches,
		RansacThreshold: m.RansacThreshold,
		MaxIterations:   m.MaxIterations,
		Confidence:      m.Confidence,
		Seed:            m.Seed,
		AlphaThreshold:  uint8(m.AlphaThreshold),
		EnableFallback:  m.Fallback,
	}
	return opts, opts.Validate()
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 使用 ~/.subimage/config.json
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithDir(filepath.Join(homeDir, ".subimage"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// NewManagerWithFile 使用指定配置文件
func NewManagerWithFile(path string) *Manager {
	return &Manager{
		configDir:  filepath.Dir(path),
		configFile: path,
	}
}

func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置
// 文件不存在时返回默认配置；文件中缺少的字段保持默认值。
func (m *Manager) Load() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}
	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Clear 删除配置文件
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*Config, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *Config) error {
	return defaultManager.Save(config)
}
