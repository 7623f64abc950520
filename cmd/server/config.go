package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/app/server"
	redisdb "cn-chinese-link/internal/db/redis"
	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/domain/dashscope"
	log "cn-chinese-link/logger"
)

const defaultAdminPassword = "admin123"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.pprof.enable", false)
	v.SetDefault("server.pprof.port", 6060)
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.max_age", 7)

	v.SetDefault("sqlite.path", sqlite.DefaultConfig().Path)
	v.SetDefault("sqlite.log_level", sqlite.DefaultConfig().LogLevel)

	v.SetDefault("session.store", constants.SessionStoreMemory)
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.janitor_interval", "5m")

	v.SetDefault("llm.provider", constants.LlmTypeDeepSeek)

	v.SetDefault("dashscope.ws_url", dashscope.DefaultWSURL)
	v.SetDefault("dashscope.handshake_timeout", "10s")
	v.SetDefault("dashscope.start_timeout", "10s")

	v.SetDefault("tts.male", []string{constants.TtsTypeCosyvoice, constants.TtsTypeSambert})
	v.SetDefault("tts.female", []string{constants.TtsTypeSambert})
	v.SetDefault("tts.cache_ttl", "1h")

	v.SetDefault("asr.provider", constants.AsrTypeParaformer)

	v.SetDefault("admin.password", defaultAdminPassword)
	v.SetDefault("metrics.enable", true)
}

// initConfig 扩展名决定解析格式；文件不存在时只用默认值和环境变量
func initConfig(v *viper.Viper, configFile string) error {
	setDefaults(v)

	// 环境变量优先于配置文件
	_ = v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("dashscope.api_key", "DASHSCOPE_API_KEY")
	_ = v.BindEnv("admin.password", "ADMIN_PASSWORD")

	if configFile == "" {
		return nil
	}
	basePath, file := filepath.Split(configFile)

	// 获取文件名和扩展名
	fileName, fileExt := func(file string) (string, string) {
		if pos := strings.LastIndex(file, "."); pos != -1 {
			return file[:pos], strings.ToLower(file[pos+1:])
		}
		return file, ""
	}(file)

	switch fileExt {
	case "json":
		v.SetConfigType("json")
	case "yaml", "yml":
		v.SetConfigType("yaml")
	default:
		return fmt.Errorf("unsupported config file type: %s", fileExt)
	}
	if basePath == "" {
		basePath = "."
	}
	v.SetConfigName(fileName)
	v.AddConfigPath(basePath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			fmt.Printf("配置文件 %s 不存在，使用默认配置\n", configFile)
			return nil
		}
		return err
	}
	return nil
}

// loadDotEnv 加载 .env，不覆盖已有环境变量
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("加载 %s 失败: %v\n", path, err)
	}
}

func initLog(v *viper.Viper) error {
	return log.Setup(log.Config{
		Path:   v.GetString("log.path"),
		File:   v.GetString("log.file"),
		Level:  v.GetString("log.level"),
		Stdout: v.GetBool("log.stdout"),
		MaxAge: v.GetInt("log.max_age"),
	})
}

func initRedis(v *viper.Viper) error {
	redisConfig := &redisdb.Config{
		Host:      v.GetString("redis.host"),
		Port:      v.GetInt("redis.port"),
		Password:  v.GetString("redis.password"),
		DB:        v.GetInt("redis.db"),
		KeyPrefix: v.GetString("redis.key_prefix"),
	}
	return redisdb.Init(redisConfig)
}

func sqliteConfig(v *viper.Viper) sqlite.Config {
	return sqlite.Config{
		Path:          v.GetString("sqlite.path"),
		LogLevel:      v.GetString("sqlite.log_level"),
		SlowThreshold: v.GetDuration("sqlite.slow_threshold"),
	}
}

func serverConfig(v *viper.Viper) server.Config {
	return server.Config{
		Port:           v.GetInt("server.port"),
		MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
	}
}

// providerConfigs 读取 section 下每个provider的配置
func providerConfigs(v *viper.Viper, section string, names []string) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(names))
	for _, name := range names {
		out[name] = v.GetStringMap(section + "." + name)
	}
	return out
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	d := cast.ToDuration(v.Get(key))
	if d <= 0 {
		return def
	}
	return d
}

// dashscopeOptions 未配置代理时使用环境变量中的代理
func dashscopeOptions(v *viper.Viper) ([]dashscope.Option, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: durationOr(v, "dashscope.handshake_timeout", 10*time.Second),
		Proxy:            http.ProxyFromEnvironment,
	}
	if proxy := v.GetString("dashscope.proxy"); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("dashscope.proxy: %w", err)
		}
		dialer.Proxy = http.ProxyURL(u)
	}
	return []dashscope.Option{
		dashscope.WithWSURL(v.GetString("dashscope.ws_url")),
		dashscope.WithWorkspace(v.GetString("dashscope.workspace")),
		dashscope.WithDialer(dialer),
		dashscope.WithStartTimeout(durationOr(v, "dashscope.start_timeout", 0)),
	}, nil
}
