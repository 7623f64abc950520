package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/data/models"
	"cn-chinese-link/internal/domain/tracking"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Nickname        string `json:"nickname"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Nickname string `json:"nickname"`
	HSKLevel int    `json:"hsk_level"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user,omitempty"`
}

func (a *App) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	ctx := c.Request.Context()
	user, err := a.deps.Accounts.Register(ctx, req.Email, req.Password, req.ConfirmPassword, req.Nickname)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sess, err := a.deps.Auth.CreateSession(ctx, user.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{Token: sess.Token, User: user})
}

func (a *App) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	ctx := c.Request.Context()
	user, err := a.deps.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sess, err := a.deps.Auth.CreateSession(ctx, user.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Token: sess.Token, User: user})
}

// handleLogout 令牌无效也返回成功
func (a *App) handleLogout(c *gin.Context) {
	if err := a.deps.Auth.RemoveToken(c.Request.Context(), c.GetHeader("Authorization")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *App) handleMe(c *gin.Context) {
	user, err := a.deps.Accounts.Info(c.Request.Context(), currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) handleUpdateMe(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	user, err := a.deps.Accounts.UpdateProfile(c.Request.Context(), currentUserID(c), req.Nickname, req.HSKLevel)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *App) handleRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": a.deps.Catalog.Roles()})
}

func (a *App) handleHSKLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"levels":  a.deps.Catalog.HSKLevels(),
		"default": constants.DefaultHSKLevel,
	})
}

// handleStartLearning 落地页点击“开始学习”，未登录时记为匿名
func (a *App) handleStartLearning(c *gin.Context) {
	var uid *int64
	if id := currentUserID(c); id != 0 {
		uid = tracking.UserID(id)
	}
	_ = a.deps.Tracker.Track(c.Request.Context(), uid, constants.EventStartLearning, nil)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
