package cosyvoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"cn-chinese-link/internal/domain/dashscope"
	log "cn-chinese-link/logger"
)

const (
	DefaultModel      = "cosyvoice-v3-flash"
	DefaultVoice      = "longanyang"
	DefaultFormat     = "mp3"
	DefaultSampleRate = 22050
)

// CosyVoiceTTSProvider DashScope CosyVoice，双工任务：run-task后逐段continue-task发送文本
type CosyVoiceTTSProvider struct {
	client     *dashscope.Client
	Model      string
	Voice      string
	Format     string
	SampleRate int
	Volume     int
	Rate       float64
	Pitch      float64
}

// NewCosyVoiceTTSProvider 创建新的CosyVoice TTS提供者
func NewCosyVoiceTTSProvider(config map[string]interface{}, client *dashscope.Client) *CosyVoiceTTSProvider {
	p := &CosyVoiceTTSProvider{
		client:     client,
		Model:      cast.ToString(config["model"]),
		Voice:      cast.ToString(config["voice"]),
		Format:     cast.ToString(config["format"]),
		SampleRate: cast.ToInt(config["sample_rate"]),
		Volume:     cast.ToInt(config["volume"]),
		Rate:       cast.ToFloat64(config["rate"]),
		Pitch:      cast.ToFloat64(config["pitch"]),
	}

	// 设置默认值
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Voice == "" {
		p.Voice = DefaultVoice
	}
	if p.Format == "" {
		p.Format = DefaultFormat
	}
	if p.SampleRate == 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.Volume == 0 {
		p.Volume = 50
	}
	if p.Rate == 0 {
		p.Rate = 1
	}
	if p.Pitch == 0 {
		p.Pitch = 1
	}
	return p
}

func (p *CosyVoiceTTSProvider) request() *dashscope.TaskRequest {
	return &dashscope.TaskRequest{
		Streaming: dashscope.StreamingDuplex,
		Task:      "tts",
		Function:  "SpeechSynthesizer",
		Model:     p.Model,
		Parameters: map[string]interface{}{
			"text_type":   "PlainText",
			"voice":       p.Voice,
			"format":      p.Format,
			"sample_rate": p.SampleRate,
			"volume":      p.Volume,
			"rate":        p.Rate,
			"pitch":       p.Pitch,
		},
	}
}

// Synthesize 合成整段文本
func (p *CosyVoiceTTSProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("cosyvoice: 文本为空")
	}
	startTs := time.Now()
	result, err := p.client.Run(ctx, p.request(), func(t *dashscope.Task) error {
		return t.SendText(text)
	})
	if err != nil {
		return nil, fmt.Errorf("cosyvoice: %w", err)
	}
	if len(result.Audio) == 0 {
		return nil, errors.New("cosyvoice: 未返回音频")
	}
	log.Debugf("耗时统计: cosyvoice %s 合成 %d 字节, %d ms", p.Voice, len(result.Audio), time.Since(startTs).Milliseconds())
	return result.Audio, nil
}
