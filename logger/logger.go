package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	log "github.com/sirupsen/logrus"
)

// Config 日志配置
type Config struct {
	Path   string `mapstructure:"path" json:"path"`
	File   string `mapstructure:"file" json:"file"`
	Level  string `mapstructure:"level" json:"level"`
	Stdout bool   `mapstructure:"stdout" json:"stdout"`
	// 保留的轮转文件个数
	MaxAge int `mapstructure:"max_age" json:"max_age"`
}

func init() {
	// 不设置默认输出，由应用程序决定
	log.SetFormatter(Formatter(false))
}

// Setup 按配置初始化日志输出，文件按天轮转
func Setup(cfg Config) error {
	if cfg.File == "" {
		UseStdout()
		return setLevel(cfg.Level)
	}

	logPath := filepath.Join(cfg.Path, cfg.File)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	/* 日志轮转
	`WithLinkName` 为最新的日志建立软连接
	`WithRotationTime` 隔多久分割一次
	`WithRotationCount` 文件清理前最多保存的个数
	*/
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7
	}
	writer, err := rotatelogs.New(
		logPath+".%Y%m%d",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithRotationCount(uint(maxAge)),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("init rotatelogs: %w", err)
	}

	if cfg.Stdout {
		// 同时输出到文件和标准输出
		log.SetOutput(io.MultiWriter(writer, os.Stdout))
		log.SetFormatter(Formatter(true))
	} else {
		log.SetOutput(writer)
		log.SetFormatter(Formatter(false))
	}
	// 禁用默认的调用者报告，使用自定义的caller字段
	log.SetReportCaller(false)
	return setLevel(cfg.Level)
}

func setLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

// SetOutput 设置日志输出目标
func SetOutput(out io.Writer) {
	log.SetOutput(out)
}

// SetLevel 设置日志级别
func SetLevel(level log.Level) {
	log.SetLevel(level)
}

// StandardLogger 返回底层logrus实例，供gorm等组件接入
func StandardLogger() *log.Logger {
	return log.StandardLogger()
}

// UseStdout 使用标准输出
func UseStdout() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(Formatter(true))
}

// getCaller 获取实际的调用者信息（跳过logger包装层）
// 调用栈：用户代码 -> logger.Info -> addCallerField -> getCaller
func getCaller() (string, int) {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown", 0
	}
	return filepath.Base(file), line
}

func addCallerField() *log.Entry {
	file, line := getCaller()
	return log.WithField("caller", fmt.Sprintf("%s:%d", file, line))
}

func Info(args ...interface{}) {
	addCallerField().Info(args...)
}

func Error(args ...interface{}) {
	addCallerField().Error(args...)
}

func Debug(args ...interface{}) {
	addCallerField().Debug(args...)
}

func Warn(args ...interface{}) {
	addCallerField().Warn(args...)
}

func Fatal(args ...interface{}) {
	addCallerField().Fatal(args...)
}

func Infof(format string, args ...interface{}) {
	addCallerField().Infof(format, args...)
}

func Errorf(format string, args ...interface{}) {
	addCallerField().Errorf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	addCallerField().Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	addCallerField().Warnf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	addCallerField().Fatalf(format, args...)
}

// Log 以 key, value 成对的参数构造带字段的日志条目
func Log(args ...interface{}) *log.Entry {
	fields := logFields(args...)

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}
	fields["caller"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)

	return log.WithFields(fields)
}

func logFields(args ...interface{}) log.Fields {
	fields := log.Fields{}
	lenArgs := len(args)
	for i := 0; i < lenArgs; i = i + 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i <= lenArgs-2 {
			fields[key] = args[i+1]
			continue
		}
		fields[key] = ""
	}
	return fields
}

func Formatter(isConsole bool) *nested.Formatter {
	fmtter := &nested.Formatter{
		FieldsOrder:      []string{"time", "level", "caller", "msg"},
		HideKeys:         true,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		CallerFirst:      true,
		NoUppercaseLevel: true,
		ShowFullLevel:    true,
		// 已经有自定义的caller字段
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return ""
		},
	}
	fmtter.NoColors = !isConsole
	return fmtter
}
