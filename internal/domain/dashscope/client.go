// Package dashscope 阿里云百炼WebSocket推理接口（run-task协议）客户端，
// 语音合成和语音识别共用。
package dashscope

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultWSURL = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

	StreamingDuplex = "duplex"
	StreamingOut    = "out"
)

// Client DashScope客户端
type Client struct {
	apiKey      string
	wsURL       string
	workspaceID string
	dialer      *websocket.Dialer
	// 等待task-started的超时
	startTimeout time.Duration
}

type Option func(*Client)

// NewClient apiKey为空时读取环境变量DASHSCOPE_API_KEY
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("DASHSCOPE_API_KEY")
	}
	c := &Client{
		apiKey:       apiKey,
		wsURL:        DefaultWSURL,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		startTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithWSURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.wsURL = url
		}
	}
}

func WithWorkspace(workspaceID string) Option {
	return func(c *Client) {
		c.workspaceID = workspaceID
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

func WithStartTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.startTimeout = d
		}
	}
}

// HasKey 是否配置了API Key
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}
