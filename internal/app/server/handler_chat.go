package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/domain/chat"
)

type startRequest struct {
	Role     string `json:"role"`
	Scene    string `json:"scene"`
	HSKLevel int    `json:"hsk_level"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// conversationView 对话加上最后一条回复的建议
type conversationView struct {
	*chat.Conversation
	Suggestions []string `json:"suggestions"`
	// 开场失败时带上提示，客户端可调用 opening 重试
	Error string `json:"error,omitempty"`
}

func viewOf(conv *chat.Conversation) conversationView {
	suggestions := conv.Suggestions()
	if suggestions == nil {
		suggestions = []string{}
	}
	return conversationView{Conversation: conv, Suggestions: suggestions}
}

func (a *App) handleStartConversation(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	if req.HSKLevel == 0 {
		req.HSKLevel = a.deps.Catalog.NormalizeHSK(0)
	}
	conv, err := a.deps.Chat.Start(c.Request.Context(), currentUserID(c), req.Role, req.Scene, req.HSKLevel)
	if err != nil {
		if conv != nil && errors.Is(err, chat.ErrLLMUnavailable) {
			view := viewOf(conv)
			view.Error = chat.ErrLLMUnavailable.Error()
			c.JSON(http.StatusCreated, view)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(conv))
}

func (a *App) handleGetConversation(c *gin.Context) {
	conv, err := a.deps.Chat.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

func (a *App) handleOpening(c *gin.Context) {
	conv, err := a.deps.Chat.Opening(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

func (a *App) handleSendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	conv, err := a.deps.Chat.Send(c.Request.Context(), currentUserID(c), c.Param("id"), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

// handleSendVoice multipart表单字段 audio
func (a *App) handleSendVoice(c *gin.Context) {
	fh, err := c.FormFile("audio")
	if err != nil {
		abortWithError(c, errBadRequest)
		return
	}
	if fh.Size > a.cfg.MaxUploadBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "录音文件过大 Recording too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, a.cfg.MaxUploadBytes))
	if err != nil {
		abortWithError(c, err)
		return
	}

	conv, text, err := a.deps.Chat.SendVoice(c.Request.Context(), currentUserID(c), c.Param("id"), data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text, "conversation": viewOf(conv)})
}

func (a *App) handleRestart(c *gin.Context) {
	conv, err := a.deps.Chat.Restart(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		if conv != nil && errors.Is(err, chat.ErrLLMUnavailable) {
			view := viewOf(conv)
			view.Error = chat.ErrLLMUnavailable.Error()
			c.JSON(http.StatusOK, view)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

func (a *App) handleSpeech(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortWithError(c, chat.ErrMessageNotFound)
		return
	}
	audio, err := a.deps.Chat.Speech(c.Request.Context(), currentUserID(c), c.Param("id"), index)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (a *App) handleSaveKeyword(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortWithError(c, chat.ErrMessageNotFound)
		return
	}
	v, err := a.deps.Chat.SaveKeyword(c.Request.Context(), currentUserID(c), c.Param("id"), index, c.Param("word"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
