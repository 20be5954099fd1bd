// Package logger 提供统一的日志工具
//
// 每行格式为 "15:04:05 | LEVEL | 消息"，批处理中每个组合另有一行事件日志：
// "PAIR | OK |   12.3ms | 详情"。
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	// OFF 关闭所有输出
	OFF
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "OFF"}

func (l Level) String() string {
	if l < DEBUG || l > OFF {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel 解析日志级别字符串，不区分大小写，无法识别时返回 INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "OFF", "NONE":
		return OFF
	default:
		return INFO
	}
}

// Options 日志输出配置
type Options struct {
	Level   Level
	Console bool      // 是否输出到 Output
	Output  io.Writer // 控制台输出目标，nil 为 os.Stdout
	File    string    // 追加写入的日志文件，为空表示不写文件
}

// Logger 日志记录器
type Logger struct {
	mu      sync.Mutex
	level   Level
	out     *log.Logger
	console io.Writer // nil 表示不输出到控制台
	file    *os.File
}

var defaultLogger = New(Options{Level: INFO, Console: true})

// New 创建 Logger；打开日志文件失败时忽略文件输出
func New(opts Options) *Logger {
	l := &Logger{out: log.New(io.Discard, "", 0)}
	if err := l.Configure(opts); err != nil {
		opts.File = ""
		_ = l.Configure(opts)
	}
	return l
}

// Default 获取默认 logger
func Default() *Logger {
	return defaultLogger
}

// Configure 替换级别和输出目标，之前打开的日志文件会被关闭
func (l *Logger) Configure(opts Options) error {
	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("无法打开日志文件: %w", err)
		}
		file = f
	}

	var console io.Writer
	if opts.Console {
		console = opts.Output
		if console == nil {
			console = os.Stdout
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.level = opts.Level
	l.console = console
	l.file = file
	l.rewire()
	return nil
}

// rewire 按当前的控制台和文件重建输出，调用方持有锁
func (l *Logger) rewire() {
	var writers []io.Writer
	if l.console != nil {
		writers = append(writers, l.console)
	}
	if l.file != nil {
		writers = append(writers, l.file)
	}
	switch len(writers) {
	case 0:
		l.out.SetOutput(io.Discard)
	case 1:
		l.out.SetOutput(writers[0])
	default:
		l.out.SetOutput(io.MultiWriter(writers...))
	}
}

// Enabled 该级别的日志是否会输出
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level && l.level != OFF
}

func (l *Logger) printf(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.level == OFF {
		return
	}
	l.out.Printf("%s | %-5s | %s", time.Now().Format("15:04:05"), level, fmt.Sprintf(format, args...))
}

// Debug 输出 DEBUG 级别日志
func (l *Logger) Debug(format string, args ...interface{}) { l.printf(DEBUG, format, args...) }

// Info 输出 INFO 级别日志
func (l *Logger) Info(format string, args ...interface{}) { l.printf(INFO, format, args...) }

// Warn 输出 WARN 级别日志
func (l *Logger) Warn(format string, args ...interface{}) { l.printf(WARN, format, args...) }

// Error 输出 ERROR 级别日志
func (l *Logger) Error(format string, args ...interface{}) { l.printf(ERROR, format, args...) }

// LogEvent 记录一条带分类和耗时的事件，失败事件按 ERROR 输出
func (l *Logger) LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	level, status := INFO, "OK"
	if !ok {
		level, status = ERROR, "NG"
	}
	l.printf(level, "%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
}

// Close 关闭日志文件，之后只输出到控制台
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.rewire()
	return err
}

// 包级别便捷函数
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	defaultLogger.LogEvent(category, ok, elapsedMs, detail)
}

// Configure 配置默认 logger
func Configure(opts Options) error { return defaultLogger.Configure(opts) }
