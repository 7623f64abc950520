package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/app/server"
	"cn-chinese-link/internal/app/server/auth"
	redisdb "cn-chinese-link/internal/db/redis"
	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/asr"
	"cn-chinese-link/internal/domain/chat"
	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/domain/llm"
	"cn-chinese-link/internal/domain/persona"
	"cn-chinese-link/internal/domain/session"
	"cn-chinese-link/internal/domain/session/memory"
	"cn-chinese-link/internal/domain/stats"
	"cn-chinese-link/internal/domain/tracking"
	"cn-chinese-link/internal/domain/tts"
	"cn-chinese-link/internal/domain/vocab"
	"cn-chinese-link/internal/observe"
	log "cn-chinese-link/logger"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// 解析命令行参数
	configFile := flag.String("c", "config/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件")
	flag.Parse()

	loadDotEnv(*envFile)

	v := viper.GetViper()
	if err := initConfig(v, *configFile); err != nil {
		fmt.Printf("initConfig err: %+v\n", err)
		return 1
	}
	if err := initLog(v); err != nil {
		fmt.Printf("initLog err: %+v\n", err)
		return 1
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var shutdownMetrics func(context.Context) error
	if v.GetBool("metrics.enable") {
		var err error
		shutdownMetrics, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "cn-chinese-link",
			ServiceVersion: version,
		})
		if err != nil {
			log.Errorf("初始化指标失败: %v", err)
			return 1
		}
	}

	db, err := sqlite.Open(sqliteConfig(v))
	if err != nil {
		log.Errorf("打开数据库失败: %v", err)
		return 1
	}

	store, err := newStore(v)
	if err != nil {
		log.Errorf("初始化会话存储失败: %v", err)
		return 1
	}

	app, err := buildApp(v, db, store)
	if err != nil {
		log.Errorf("初始化服务失败: %v", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gctx)
	})
	if ms, ok := store.(*memory.MemoryStore); ok {
		g.Go(func() error {
			ms.RunJanitor(gctx, durationOr(v, "session.janitor_interval", 5*time.Minute))
			return nil
		})
	}
	if v.GetBool("server.pprof.enable") {
		pprofPort := v.GetInt("server.pprof.port")
		pprofSrv := &http.Server{Addr: fmt.Sprintf(":%d", pprofPort), Handler: http.DefaultServeMux}
		g.Go(func() error {
			log.Infof("pprof地址: http://localhost:%d/debug/pprof/", pprofPort)
			if err := pprofSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return pprofSrv.Close()
		})
	}

	log.Info("服务器已启动，按 Ctrl+C 退出")
	code := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("服务异常退出: %v", err)
		code = 1
	}

	log.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(); err != nil {
		log.Warnf("关闭会话存储失败: %v", err)
	}
	if v.GetString("session.store") == constants.SessionStoreRedis {
		_ = redisdb.Close()
	}
	if err := sqlite.Close(db); err != nil {
		log.Warnf("关闭数据库失败: %v", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Warnf("关闭指标失败: %v", err)
		}
	}
	log.Info("服务器已关闭")
	return code
}

func newStore(v *viper.Viper) (session.Store, error) {
	storeType := v.GetString("session.store")
	if storeType == constants.SessionStoreRedis {
		if err := initRedis(v); err != nil {
			return nil, err
		}
	}
	return session.GetStore(storeType, map[string]interface{}{
		"key_prefix": v.GetString("redis.key_prefix"),
	})
}

func buildApp(v *viper.Viper, db *gorm.DB, store session.Store) (*server.App, error) {
	metrics := observe.DefaultMetrics()
	tracker := tracking.NewTracker(db)
	vocabs := vocab.NewService(db, tracker)

	catalog := persona.Default()
	if path := v.GetString("persona.file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read persona file: %w", err)
		}
		if catalog, err = persona.Parse(data); err != nil {
			return nil, err
		}
	}

	llmName := v.GetString("llm.provider")
	llmConfig := make(map[string]interface{})
	for k, val := range v.GetStringMap("llm." + llmName) {
		llmConfig[k] = val
	}
	if key := v.GetString("llm." + llmName + ".api_key"); key != "" {
		llmConfig["api_key"] = key
	}
	provider, err := llm.GetLLMProvider(llmName, llmConfig)
	if err != nil {
		return nil, err
	}

	dsOpts, err := dashscopeOptions(v)
	if err != nil {
		return nil, err
	}
	client := dashscope.NewClient(v.GetString("dashscope.api_key"), dsOpts...)
	if !client.HasKey() {
		log.Warn("未配置DASHSCOPE_API_KEY，语音合成和识别将不可用")
	}

	maleNames := v.GetStringSlice("tts.male")
	femaleNames := v.GetStringSlice("tts.female")
	ttsConfigs := providerConfigs(v, "tts", append(append([]string{}, maleNames...), femaleNames...))
	male, err := tts.BuildChain(maleNames, ttsConfigs, client, "male")
	if err != nil {
		return nil, fmt.Errorf("tts male: %w", err)
	}
	female, err := tts.BuildChain(femaleNames, ttsConfigs, client, "female")
	if err != nil {
		return nil, fmt.Errorf("tts female: %w", err)
	}
	speech := tts.NewService(male, female, metrics)

	asrName := v.GetString("asr.provider")
	recognizer, err := asr.NewAsrProvider(asrName, v.GetStringMap("asr."+asrName), client)
	if err != nil {
		return nil, err
	}

	chats := chat.NewService(store, provider, db,
		chat.WithLLMName(llmName),
		chat.WithCatalog(catalog),
		chat.WithTracker(tracker),
		chat.WithVocab(vocabs),
		chat.WithMetrics(metrics),
		chat.WithTTS(speech),
		chat.WithASR(asrName, recognizer),
		chat.WithTTL(durationOr(v, "session.ttl", chat.DefaultTTL)),
		chat.WithSpeechTTL(durationOr(v, "tts.cache_ttl", chat.DefaultSpeechTTL)),
	)

	adminPassword := v.GetString("admin.password")
	if adminPassword == defaultAdminPassword {
		log.Warn("管理员密码仍为默认值，请通过ADMIN_PASSWORD修改")
	}

	deps := server.Deps{
		Auth:     auth.NewAuthManager(store, durationOr(v, "session.ttl", auth.DefaultTTL), adminPassword),
		Accounts: account.NewService(db, tracker),
		Chat:     chats,
		Vocab:    vocabs,
		Stats:    stats.NewService(db),
		Tracker:  tracker,
		Catalog:  catalog,
		Metrics:  metrics,
	}
	if v.GetBool("metrics.enable") {
		deps.MetricsHandler = observe.Handler()
	}
	deps.ModelInfo = provider.GetModelInfo()
	if v.GetString("session.store") == constants.SessionStoreRedis {
		deps.HealthChecks = map[string]func(context.Context) bool{"redis": redisdb.IsHealthy}
	}
	return server.NewApp(serverConfig(v), deps), nil
}
