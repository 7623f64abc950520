package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/app/server/auth"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/chat"
	"cn-chinese-link/internal/domain/persona"
	"cn-chinese-link/internal/domain/stats"
	"cn-chinese-link/internal/domain/tracking"
	"cn-chinese-link/internal/domain/vocab"
	"cn-chinese-link/internal/observe"
	log "cn-chinese-link/logger"
)

// Config HTTP服务配置
type Config struct {
	Port int `mapstructure:"port" json:"port"`
	// 语音上传大小上限
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Port:            8080,
		MaxUploadBytes:  10 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Deps 路由依赖的领域服务
type Deps struct {
	Auth     *auth.AuthManager
	Accounts *account.Service
	Chat     *chat.Service
	Vocab    *vocab.Service
	Stats    *stats.Service
	Tracker  *tracking.Tracker
	Catalog  *persona.Catalog
	Metrics  *observe.Metrics
	// 为空时不注册 /metrics
	MetricsHandler http.Handler
	// /health 附带的模型信息
	ModelInfo map[string]interface{}
	// 任一检查失败时 /health 返回503
	HealthChecks map[string]func(context.Context) bool
}

// App 统一管理HTTP服务
type App struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
	now    func() time.Time
}

func NewApp(cfg Config, deps Deps) *App {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if deps.Catalog == nil {
		deps.Catalog = persona.Default()
	}

	app := &App{cfg: cfg, deps: deps, now: time.Now}
	app.engine = gin.New()
	app.engine.Use(Recovery(), AccessLog(), CORS(), Metrics(deps.Metrics))
	app.registerRoutes(app.engine)
	return app
}

// Handler 返回路由，测试直接用它
func (a *App) Handler() http.Handler {
	return a.engine
}

// Run 监听端口直到ctx结束，然后优雅退出
func (a *App) Run(ctx context.Context) error {
	a.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP服务启动，监听端口 %d", a.cfg.Port)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	log.Info("HTTP服务正在关闭")
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *App) registerRoutes(r *gin.Engine) {
	r.GET("/health", a.handleHealth)
	if a.deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(a.deps.MetricsHandler))
	}

	api := r.Group("/api")
	{
		api.POST("/auth/register", a.handleRegister)
		api.POST("/auth/login", a.handleLogin)
		api.POST("/auth/logout", a.handleLogout)
		api.GET("/roles", a.handleRoles)
		api.GET("/hsk-levels", a.handleHSKLevels)
		api.POST("/learning/start", OptionalUser(a.deps.Auth), a.handleStartLearning)
	}

	user := api.Group("", RequireUser(a.deps.Auth))
	{
		user.GET("/me", a.handleMe)
		user.PUT("/me", a.handleUpdateMe)

		user.POST("/conversations", a.handleStartConversation)
		user.GET("/conversations/:id", a.handleGetConversation)
		user.POST("/conversations/:id/opening", a.handleOpening)
		user.POST("/conversations/:id/messages", a.handleSendMessage)
		user.POST("/conversations/:id/voice", a.handleSendVoice)
		user.POST("/conversations/:id/restart", a.handleRestart)
		user.GET("/conversations/:id/messages/:index/speech", a.handleSpeech)
		user.POST("/conversations/:id/messages/:index/keywords/:word", a.handleSaveKeyword)

		user.GET("/vocab", a.handleListVocab)
		user.POST("/vocab", a.handleSaveVocab)
		user.POST("/vocab/:id/mastered", a.handleMarkMastered)
		user.DELETE("/vocab/:id", a.handleDeleteVocab)
	}

	r.POST("/admin/login", a.handleAdminLogin)
	admin := r.Group("/admin", RequireAdmin(a.deps.Auth))
	{
		admin.POST("/logout", a.handleLogout)
		admin.GET("/users", a.handleAdminUsers)
		admin.GET("/role-scenes", a.handleAdminRoleScenes)
		admin.GET("/vocab", a.handleAdminVocab)
		admin.GET("/events", a.handleAdminEvents)
		admin.GET("/summary", a.handleAdminSummary)
	}
}

func (a *App) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	resp := gin.H{"time": a.now().Format(time.RFC3339)}
	if len(a.deps.HealthChecks) > 0 {
		checks := make(map[string]bool, len(a.deps.HealthChecks))
		for name, check := range a.deps.HealthChecks {
			checks[name] = check(c.Request.Context())
			if !checks[name] {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		resp["checks"] = checks
	}
	if a.deps.ModelInfo != nil {
		resp["llm"] = a.deps.ModelInfo
	}
	resp["status"] = status
	c.JSON(code, resp)
}
