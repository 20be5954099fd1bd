package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/zoeyai/subimage/pkg/batch"
)

// 环境变量名
const (
	EnvDetector   = "SUBIMAGE_DETECTOR"
	EnvRatio      = "SUBIMAGE_RATIO"
	EnvMinMatches = "SUBIMAGE_MIN_MATCHES"
	EnvRansac     = "SUBIMAGE_RANSAC"
	EnvSeed       = "SUBIMAGE_SEED"
	EnvFallback   = "SUBIMAGE_FALLBACK"
	EnvWorkers    = "SUBIMAGE_WORKERS"
	EnvExts       = "SUBIMAGE_EXTS"
	EnvDatabase   = "SUBIMAGE_DB"
	EnvLogLevel   = "SUBIMAGE_LOG_LEVEL"
	EnvLogFile    = "SUBIMAGE_LOG_FILE"
)

// ApplyEnv 用环境变量覆盖配置
// envFile 非空时先读取该 .env 文件；进程环境变量优先于文件中的值。
// 不会修改进程环境。
func (c *Config) ApplyEnv(envFile string) error {
	values := map[string]string{}
	if envFile != "" {
		fileValues, err := godotenv.Read(envFile)
		if err != nil {
			return fmt.Errorf("读取 env 文件失败: %w", err)
		}
		values = fileValues
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}

	if v, ok := lookup(EnvDetector); ok {
		c.Match.Detector = v
	}
	if v, ok := lookup(EnvRatio); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError(EnvRatio, v, err)
		}
		c.Match.Ratio = f
	}
	if v, ok := lookup(EnvMinMatches); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvMinMatches, v, err)
		}
		c.Match.MinMatches = n
	}
	if v, ok := lookup(EnvRansac); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError(EnvRansac, v, err)
		}
		c.Match.RansacThreshold = f
	}
	if v, ok := lookup(EnvSeed); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError(EnvSeed, v, err)
		}
		c.Match.Seed = n
	}
	if v, ok := lookup(EnvFallback); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvFallback, v, err)
		}
		c.Match.Fallback = b
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvWorkers, v, err)
		}
		c.Batch.Workers = n
	}
	if v, ok := lookup(EnvExts); ok {
		c.Batch.Extensions = batch.ParseExtensions(v)
	}
	if v, ok := lookup(EnvDatabase); ok {
		c.Output.Database = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Logging.File = v
	}
	return nil
}

func envError(key, value string, err error) error {
	return fmt.Errorf("环境变量 %s=%q 无效: %w", key, value, err)
}
