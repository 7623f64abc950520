package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/domain/vocab"
)

type vocabRequest struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
	Context string `json:"context"`
}

func vocabID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, vocab.ErrNotFound)
		return 0, false
	}
	return id, true
}

func (a *App) handleListVocab(c *gin.Context) {
	words, err := a.deps.Vocab.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": words, "count": len(words)})
}

func (a *App) handleSaveVocab(c *gin.Context) {
	var req vocabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	v, err := a.deps.Vocab.Save(c.Request.Context(), currentUserID(c), req.Word, req.Meaning, req.Context)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (a *App) handleMarkMastered(c *gin.Context) {
	id, ok := vocabID(c)
	if !ok {
		return
	}
	if err := a.deps.Vocab.MarkMastered(c.Request.Context(), currentUserID(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *App) handleDeleteVocab(c *gin.Context) {
	id, ok := vocabID(c)
	if !ok {
		return
	}
	if err := a.deps.Vocab.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
