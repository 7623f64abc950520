package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cast"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/llm/eino_llm"
)

// LLMProvider 大语言模型提供者接口
type LLMProvider interface {
	// Chat 发送完整对话历史，返回模型的原始文本输出
	Chat(ctx context.Context, dialogue []*schema.Message) (string, error)

	// GetModelInfo 获取模型名称和其他元数据
	GetModelInfo() map[string]interface{}
}

const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	DeepSeekModel   = "deepseek-chat"
)

// GetLLMProvider 按配置里的type创建LLM提供者
func GetLLMProvider(providerName string, config map[string]interface{}) (LLMProvider, error) {
	cfg := make(map[string]interface{}, len(config)+4)
	for k, v := range config {
		cfg[k] = v
	}
	llmType := cast.ToString(cfg["type"])
	if llmType == "" {
		llmType = providerName
	}

	switch llmType {
	case constants.LlmTypeDeepSeek:
		// DeepSeek走openai兼容接口，要求JSON输出
		cfg["type"] = constants.LlmTypeOpenai
		setDefault(cfg, "model_name", DeepSeekModel)
		setDefault(cfg, "base_url", DeepSeekBaseURL)
		setDefault(cfg, "api_key", os.Getenv("DEEPSEEK_API_KEY"))
		setDefault(cfg, "json_output", true)
	case constants.LlmTypeOpenai:
		setDefault(cfg, "json_output", true)
	case constants.LlmTypeOllama:
	default:
		return nil, fmt.Errorf("不支持的LLM提供者: %s", llmType)
	}
	cfg["type"] = normalizeType(llmType)

	provider, err := eino_llm.NewEinoLLMProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建Eino LLM提供者 %s 失败: %w", providerName, err)
	}
	return provider, nil
}

func normalizeType(llmType string) string {
	if llmType == constants.LlmTypeOllama {
		return constants.LlmTypeOllama
	}
	return constants.LlmTypeOpenai
}

func setDefault(cfg map[string]interface{}, key string, value interface{}) {
	if v, ok := cfg[key]; ok && cast.ToString(v) != "" {
		return
	}
	cfg[key] = value
}
