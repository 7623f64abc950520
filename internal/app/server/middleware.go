package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/app/server/auth"
	"cn-chinese-link/internal/observe"
	log "cn-chinese-link/logger"
)

const sessionKey = "session"

// Recovery 捕获panic，返回500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Errorf("请求 %s %s panic: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	})
}

// AccessLog 访问日志
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.Log(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("http request")
	}
}

// CORS CORS中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Metrics 记录请求耗时，路由取模板路径
func Metrics(m *observe.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RecordHTTP(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), start)
	}
}

func authenticate(am *auth.AuthManager, c *gin.Context) (*auth.ClientSession, error) {
	if am == nil {
		return nil, auth.ErrInvalidToken
	}
	return am.ValidateToken(c.Request.Context(), c.GetHeader("Authorization"))
}

// RequireUser 需要普通用户令牌
func RequireUser(am *auth.AuthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := authenticate(am, c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if sess.Admin || sess.UserID == 0 {
			abortWithError(c, auth.ErrInvalidToken)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// OptionalUser 带有效令牌时记录会话，没有也放行
func OptionalUser(am *auth.AuthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if sess, err := authenticate(am, c); err == nil && !sess.Admin {
				c.Set(sessionKey, sess)
			}
		}
		c.Next()
	}
}

// RequireAdmin 需要管理员令牌
func RequireAdmin(am *auth.AuthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := authenticate(am, c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !sess.Admin {
			abortWithError(c, errForbidden)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *auth.ClientSession {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*auth.ClientSession)
	return sess
}

// currentUserID 没有登录时返回0
func currentUserID(c *gin.Context) int64 {
	if sess := currentSession(c); sess != nil {
		return sess.UserID
	}
	return 0
}

var errForbidden = errors.New("需要管理员权限 Admin only")
