package asr

import (
	"context"
	"fmt"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/asr/paraformer"
	"cn-chinese-link/internal/domain/dashscope"
)

// ErrNoSpeech 识别结果为空
var ErrNoSpeech = paraformer.ErrNoSpeech

// AsrProvider 语音识别接口
type AsrProvider interface {
	// Recognize 一次性识别一段录音（任意支持的格式），返回文本
	Recognize(ctx context.Context, audio []byte) (string, error)
}

// NewAsrProvider 创建一个新的ASR实例
// asrType: ASR引擎类型，目前支持 "paraformer"
func NewAsrProvider(asrType string, config map[string]interface{}, client *dashscope.Client) (AsrProvider, error) {
	switch asrType {
	case constants.AsrTypeParaformer, "":
		if client == nil {
			return nil, fmt.Errorf("%s需要DashScope客户端", constants.AsrTypeParaformer)
		}
		return paraformer.NewParaformerProvider(config, client), nil
	default:
		return nil, fmt.Errorf("不支持的ASR引擎类型: %s，目前仅支持 'paraformer'", asrType)
	}
}
