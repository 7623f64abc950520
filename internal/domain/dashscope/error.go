package dashscope

import (
	"errors"
	"fmt"
)

// Error run-task协议返回的错误
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	TaskID     string `json:"task_id,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("dashscope: %s - %s (task_id=%s)", e.Code, e.Message, e.TaskID)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("dashscope: %s - %s (http_status=%d)", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("dashscope: %s - %s", e.Code, e.Message)
}

// IsAuth 鉴权失败
func (e *Error) IsAuth() bool {
	return e.HTTPStatus == 401 || e.HTTPStatus == 403 || e.Code == "InvalidApiKey" || e.Code == "AccessDenied"
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var ErrNoAPIKey = errors.New("dashscope: api key is empty")
