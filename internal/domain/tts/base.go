package tts

import (
	"context"
	"fmt"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/domain/tts/cosyvoice"
	"cn-chinese-link/internal/domain/tts/edge"
	"cn-chinese-link/internal/domain/tts/sambert"
)

// TTSProvider 一次性合成，返回完整的MP3
type TTSProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// GetTTSProvider 按名字创建TTS提供者，DashScope系列共用client
func GetTTSProvider(providerName string, config map[string]interface{}, client *dashscope.Client) (TTSProvider, error) {
	switch providerName {
	case constants.TtsTypeCosyvoice:
		if client == nil {
			return nil, fmt.Errorf("%s需要DashScope客户端", providerName)
		}
		return cosyvoice.NewCosyVoiceTTSProvider(config, client), nil
	case constants.TtsTypeSambert:
		if client == nil {
			return nil, fmt.Errorf("%s需要DashScope客户端", providerName)
		}
		return sambert.NewSambertTTSProvider(config, client), nil
	case constants.TtsTypeEdge:
		return edge.NewEdgeTTSProvider(config), nil
	default:
		return nil, fmt.Errorf("不支持的TTS提供者: %s", providerName)
	}
}
