package eino_llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	aclopenai "github.com/cloudwego/eino-ext/libs/acl/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cast"

	log "cn-chinese-link/logger"
)

// EinoLLMProvider 基于Eino框架的LLM提供者
// 一次请求拿完整回复，openai兼容接口（含DeepSeek）和ollama
type EinoLLMProvider struct {
	chatModel    model.BaseChatModel
	modelName    string
	maxTokens    int
	temperature  float32
	baseURL      string
	providerType string
}

const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 1000
	DefaultTimeout     = 30 * time.Second
)

// 连接池配置
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

var (
	transport     *http.Transport
	transportOnce sync.Once
)

// sharedTransport 所有openai兼容请求共用的连接池
func sharedTransport() *http.Transport {
	transportOnce.Do(func() {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	})
	return transport
}

// NewEinoLLMProvider 根据type创建openai或ollama的ChatModel
func NewEinoLLMProvider(config map[string]interface{}) (*EinoLLMProvider, error) {
	providerType := cast.ToString(config["type"])
	if providerType == "" {
		return nil, fmt.Errorf("type不能为空，必须是 'openai' 或 'ollama'")
	}

	modelName := cast.ToString(config["model_name"])
	if modelName == "" {
		return nil, fmt.Errorf("model_name不能为空")
	}

	maxTokens := DefaultMaxTokens
	if v, ok := config["max_tokens"]; ok {
		maxTokens = cast.ToInt(v)
	}
	var temperature float32 = DefaultTemperature
	if v, ok := config["temperature"]; ok {
		temperature = cast.ToFloat32(v)
	}

	var chatModel model.BaseChatModel
	var err error
	switch providerType {
	case "openai":
		chatModel, err = createOpenAIChatModel(config, maxTokens, temperature)
	case "ollama":
		chatModel, err = createOllamaChatModel(config)
	default:
		return nil, fmt.Errorf("不支持的模型类型: %s", providerType)
	}
	if err != nil {
		return nil, err
	}

	p := NewWithChatModel(chatModel, modelName)
	p.maxTokens = maxTokens
	p.temperature = temperature
	p.baseURL = cast.ToString(config["base_url"])
	p.providerType = providerType
	return p, nil
}

// NewWithChatModel 直接包装一个ChatModel
func NewWithChatModel(chatModel model.BaseChatModel, modelName string) *EinoLLMProvider {
	return &EinoLLMProvider{
		chatModel:    chatModel,
		modelName:    modelName,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
		providerType: "custom",
	}
}

func timeoutOf(config map[string]interface{}) time.Duration {
	v, ok := config["timeout"]
	if !ok {
		return DefaultTimeout
	}
	// 纯数字按秒处理
	switch n := v.(type) {
	case int, int64, float64:
		return time.Duration(cast.ToFloat64(n) * float64(time.Second))
	}
	d := cast.ToDuration(v)
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func createOpenAIChatModel(config map[string]interface{}, maxTokens int, temperature float32) (model.BaseChatModel, error) {
	modelName := cast.ToString(config["model_name"])

	apiKey := cast.ToString(config["api_key"])
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api_key不能为空")
	}

	openaiConfig := &openai.ChatModelConfig{
		Model:       modelName,
		APIKey:      apiKey,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		HTTPClient: &http.Client{
			Transport: sharedTransport(),
			Timeout:   timeoutOf(config),
		},
	}
	if baseURL := cast.ToString(config["base_url"]); baseURL != "" {
		openaiConfig.BaseURL = baseURL
	}
	if cast.ToBool(config["json_output"]) {
		openaiConfig.ResponseFormat = &aclopenai.ChatCompletionResponseFormat{
			Type: aclopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	chatModel, err := openai.NewChatModel(context.Background(), openaiConfig)
	if err != nil {
		return nil, fmt.Errorf("创建OpenAI ChatModel失败: %w", err)
	}

	log.Infof("成功创建OpenAI ChatModel，模型: %s", modelName)
	return chatModel, nil
}

func createOllamaChatModel(config map[string]interface{}) (model.BaseChatModel, error) {
	modelName := cast.ToString(config["model_name"])
	baseURL := cast.ToString(config["base_url"])
	if baseURL == "" {
		return nil, fmt.Errorf("ollama需要配置base_url")
	}

	chatModel, err := ollama.NewChatModel(context.Background(), &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Ollama ChatModel失败: %w", err)
	}

	log.Infof("成功创建Ollama ChatModel，模型: %s", modelName)
	return chatModel, nil
}

// Chat 发送完整对话，返回助手回复的文本
func (p *EinoLLMProvider) Chat(ctx context.Context, dialogue []*schema.Message) (string, error) {
	startTs := time.Now()
	msg, err := p.chatModel.Generate(ctx, dialogue,
		model.WithMaxTokens(p.maxTokens),
		model.WithTemperature(p.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if msg == nil {
		return "", errors.New("llm returned empty message")
	}
	log.Debugf("耗时统计: llm %s 生成 %d ms", p.modelName, time.Since(startTs).Milliseconds())
	return msg.Content, nil
}

// GetModelInfo 获取模型信息
func (p *EinoLLMProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model_name":    p.modelName,
		"max_tokens":    p.maxTokens,
		"temperature":   p.temperature,
		"provider_type": p.providerType,
		"framework":     "eino",
		"base_url":      p.baseURL,
	}
}
