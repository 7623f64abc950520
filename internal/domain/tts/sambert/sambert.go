package sambert

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
	DefaultModel      = "sambert-zhimiao-emo-v1"
	DefaultFormat     = "mp3"
	DefaultSampleRate = 16000
)

// SambertTTSProvider DashScope Sambert，文本随run-task一次给出，服务端单向推送音频
type SambertTTSProvider struct {
	client     *dashscope.Client
	Model      string
	Format     string
	SampleRate int
	Volume     int
	Rate       float64
	Pitch      float64
}

func NewSambertTTSProvider(config map[string]interface{}, client *dashscope.Client) *SambertTTSProvider {
	p := &SambertTTSProvider{
		client:     client,
		Model:      cast.ToString(config["model"]),
		Format:     cast.ToString(config["format"]),
		SampleRate: cast.ToInt(config["sample_rate"]),
		Volume:     cast.ToInt(config["volume"]),
		Rate:       cast.ToFloat64(config["rate"]),
		Pitch:      cast.ToFloat64(config["pitch"]),
	}
	if p.Model == "" {
		p.Model = DefaultModel
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

func (p *SambertTTSProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("sambert: 文本为空")
	}
	startTs := time.Now()
	result, err := p.client.Run(ctx, &dashscope.TaskRequest{
		Streaming: dashscope.StreamingOut,
		Task:      "tts",
		Function:  "SpeechSynthesizer",
		Model:     p.Model,
		Parameters: map[string]interface{}{
			"text_type":   "PlainText",
			"format":      p.Format,
			"sample_rate": p.SampleRate,
			"volume":      p.Volume,
			"rate":        p.Rate,
			"pitch":       p.Pitch,
		},
		Input: map[string]interface{}{"text": text},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("sambert: %w", err)
	}
	if len(result.Audio) == 0 {
		return nil, errors.New("sambert: 未返回音频")
	}
	log.Debugf("耗时统计: sambert %s 合成 %d 字节, %d ms", p.Model, len(result.Audio), time.Since(startTs).Milliseconds())
	return result.Audio, nil
}
