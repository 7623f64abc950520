package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/domain/stats"
)

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (a *App) handleAdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	sess, err := a.deps.Auth.CreateAdminSession(c.Request.Context(), req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Token: sess.Token})
}

// queryLimit 未传或非法时用默认值
func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (a *App) handleAdminUsers(c *gin.Context) {
	res, err := a.deps.Stats.Users(c.Request.Context(), a.now())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) handleAdminRoleScenes(c *gin.Context) {
	res, err := a.deps.Stats.RoleScenes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) handleAdminVocab(c *gin.Context) {
	res, err := a.deps.Stats.Vocab(c.Request.Context(), queryLimit(c, stats.DefaultVocabLimit))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) handleAdminEvents(c *gin.Context) {
	res, err := a.deps.Stats.Events(c.Request.Context(), queryLimit(c, stats.DefaultEventLimit))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) handleAdminSummary(c *gin.Context) {
	res, err := a.deps.Stats.Summary(c.Request.Context(), a.now())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
