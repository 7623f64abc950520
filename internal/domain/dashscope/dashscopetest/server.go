// Package dashscopetest 进程内的DashScope WebSocket服务端，供各provider测试使用
package dashscopetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"cn-chinese-link/internal/domain/dashscope"
)

// Server 按run-task协议应答：out模式立即返回音频，duplex模式在finish-task后返回
type Server struct {
	*httptest.Server

	// 合成类任务返回的音频
	audio []byte
	// 识别类任务返回的句子
	sentences []string
	// 非空时run-task直接返回task-failed
	failWith string

	mu        sync.Mutex
	runs      []map[string]interface{}
	texts     []string
	audioIn   int
	audioMsgs int
}

type Option func(*Server)

func WithAudio(audio []byte) Option {
	return func(s *Server) { s.audio = audio }
}

func WithSentences(sentences ...string) Option {
	return func(s *Server) { s.sentences = sentences }
}

func WithFailure(code string) Option {
	return func(s *Server) { s.failWith = code }
}

func NewServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL websocket地址
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Client 指向本服务端的客户端
func (s *Server) Client() *dashscope.Client {
	return dashscope.NewClient("test-key", dashscope.WithWSURL(s.URL()))
}

// LastRun 最近一次run-task的payload
func (s *Server) LastRun() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

func (s *Server) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *Server) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// AudioReceived 收到的音频字节数和帧数
func (s *Server) AudioReceived() (bytes, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioIn, s.audioMsgs
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var taskID string
	event := func(name string, extra map[string]interface{}, payload interface{}) error {
		h := map[string]interface{}{"task_id": taskID, "event": name}
		for k, v := range extra {
			h[k] = v
		}
		if payload == nil {
			payload = map[string]interface{}{}
		}
		return conn.WriteJSON(map[string]interface{}{"header": h, "payload": payload})
	}
	finish := func() {
		if len(s.audio) > 0 {
			_ = conn.WriteMessage(websocket.BinaryMessage, s.audio)
		}
		for _, text := range s.sentences {
			_ = event(dashscope.EventResultGenerated, nil, map[string]interface{}{
				"output": map[string]interface{}{
					"sentence": map[string]interface{}{"text": text, "sentence_end": true},
				},
			})
		}
		_ = event(dashscope.EventTaskFinished, nil, nil)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			s.mu.Lock()
			s.audioIn += len(data)
			s.audioMsgs++
			s.mu.Unlock()
			continue
		}

		var cmd struct {
			Header struct {
				Action    string `json:"action"`
				TaskID    string `json:"task_id"`
				Streaming string `json:"streaming"`
			} `json:"header"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			return
		}

		switch cmd.Header.Action {
		case "run-task":
			taskID = cmd.Header.TaskID
			s.mu.Lock()
			s.runs = append(s.runs, cmd.Payload)
			s.mu.Unlock()
			if s.failWith != "" {
				_ = event(dashscope.EventTaskFailed, map[string]interface{}{
					"error_code":    s.failWith,
					"error_message": "rejected by test server",
				}, nil)
				return
			}
			_ = event(dashscope.EventTaskStarted, nil, nil)
			if cmd.Header.Streaming == dashscope.StreamingOut {
				finish()
				return
			}
		case "continue-task":
			if input, ok := cmd.Payload["input"].(map[string]interface{}); ok {
				if text, ok := input["text"].(string); ok {
					s.mu.Lock()
					s.texts = append(s.texts, text)
					s.mu.Unlock()
				}
			}
		case "finish-task":
			finish()
			return
		}
	}
}
