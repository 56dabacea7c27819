package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	logMu  sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

func newFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     true,
	}
}

// New 按配置创建一个独立的 logger，不修改全局状态。
// DEBUG=true 时强制 debug 级别。
func New(config Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(newFormatter())

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return nil, err
		}
		// 配置日志轮转
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger, nil
}

// Init 初始化全局日志系统，同时设置 logrus 标准 logger 的输出和级别
func Init(config Config) (*logrus.Logger, error) {
	logger, err := New(config)
	if err != nil {
		return nil, err
	}

	logMu.Lock()
	defer logMu.Unlock()

	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(newFormatter())

	Logger = logger
	return logger, nil
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() (*logrus.Logger, error) {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/sniper.log",
		MaxSize:    100, // 100MB
		MaxBackups: 3,
		MaxAge:     7, // 7天
		Compress:   true,
	})
}

// Component 返回带 component 字段的子 logger；base 为空时回退到全局 logger。
func Component(base logrus.FieldLogger, name string) logrus.FieldLogger {
	if base == nil {
		base = current()
	}
	return base.WithField("component", name)
}

func current() logrus.FieldLogger {
	logMu.Lock()
	defer logMu.Unlock()
	if Logger != nil {
		return Logger
	}
	return logrus.StandardLogger()
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	return current().WithField(key, value)
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	current().Info(args...)
}
