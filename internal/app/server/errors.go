package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cn-chinese-link/internal/app/server/auth"
	"cn-chinese-link/internal/domain/account"
	"cn-chinese-link/internal/domain/asr"
	"cn-chinese-link/internal/domain/chat"
	"cn-chinese-link/internal/domain/vocab"
	log "cn-chinese-link/logger"
)

const (
	msgInternal   = "服务器内部错误 Internal server error"
	msgBadRequest = "请求格式错误 Invalid request"
)

var errBadRequest = errors.New(msgBadRequest)

// errorStatus 错误到状态码的映射，按顺序匹配
var errorStatus = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{account.ErrValidation, http.StatusBadRequest},
	{chat.ErrInvalidSelection, http.StatusBadRequest},
	{chat.ErrEmptyMessage, http.StatusBadRequest},
	{chat.ErrAudioTooShort, http.StatusBadRequest},
	{chat.ErrAudioFormat, http.StatusUnsupportedMediaType},
	{vocab.ErrEmptyWord, http.StatusBadRequest},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{auth.ErrAdminPassword, http.StatusUnauthorized},
	{account.ErrInvalidCredentials, http.StatusUnauthorized},
	{errForbidden, http.StatusForbidden},
	{account.ErrUserNotFound, http.StatusNotFound},
	{chat.ErrConversationNotFound, http.StatusNotFound},
	{chat.ErrMessageNotFound, http.StatusNotFound},
	{chat.ErrKeywordNotFound, http.StatusNotFound},
	{vocab.ErrNotFound, http.StatusNotFound},
	{account.ErrEmailTaken, http.StatusConflict},
	{asr.ErrNoSpeech, http.StatusUnprocessableEntity},
	{chat.ErrLLMUnavailable, http.StatusBadGateway},
	{chat.ErrSpeechUnavailable, http.StatusBadGateway},
	{chat.ErrRecognitionFailed, http.StatusBadGateway},
	{chat.ErrVoiceUnavailable, http.StatusServiceUnavailable},
}

// errorResponse 返回状态码和给用户看的文案，不暴露下游错误细节
func errorResponse(err error) (int, string) {
	var verr *account.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Message
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, msgInternal
}

func abortWithError(c *gin.Context, err error) {
	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
