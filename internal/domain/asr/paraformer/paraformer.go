package paraformer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"cn-chinese-link/internal/domain/audio"
	"cn-chinese-link/internal/domain/dashscope"
	log "cn-chinese-link/logger"
)

const (
	DefaultModel      = "paraformer-realtime-v2"
	DefaultSampleRate = audio.TargetSampleRate
	// 100ms 16kHz 16bit 单声道
	DefaultChunkSize = 3200
)

var ErrNoSpeech = errors.New("未识别到语音")

// ParaformerProvider DashScope实时识别模型，整段录音切块推送后取最终句子
type ParaformerProvider struct {
	client        *dashscope.Client
	Model         string
	SampleRate    int
	LanguageHints []string
	ChunkSize     int
}

func NewParaformerProvider(config map[string]interface{}, client *dashscope.Client) *ParaformerProvider {
	p := &ParaformerProvider{
		client:        client,
		Model:         cast.ToString(config["model"]),
		SampleRate:    cast.ToInt(config["sample_rate"]),
		LanguageHints: cast.ToStringSlice(config["language_hints"]),
		ChunkSize:     cast.ToInt(config["chunk_size"]),
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.SampleRate == 0 {
		p.SampleRate = DefaultSampleRate
	}
	if len(p.LanguageHints) == 0 {
		p.LanguageHints = []string{"zh", "en"}
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	return p
}

// normalize 转成16kHz单声道WAV；本身是WAV但转换失败时原样使用
func normalize(data []byte) ([]byte, error) {
	wav, err := audio.ToWav16kMono(data)
	if err == nil {
		return wav, nil
	}
	if audio.IsWav(data) {
		log.Warnf("WAV标准化失败，使用原始音频: %v", err)
		return data, nil
	}
	return nil, fmt.Errorf("音频处理失败: %w", err)
}

// Recognize 识别一段录音
func (p *ParaformerProvider) Recognize(ctx context.Context, data []byte) (string, error) {
	wav, err := normalize(data)
	if err != nil {
		return "", err
	}
	// 读不出时长或时长为0的WAV不发给服务端
	duration, err := audio.Duration(wav)
	if err != nil || duration <= 0 {
		return "", ErrNoSpeech
	}

	startTs := time.Now()
	result, err := p.client.Run(ctx, &dashscope.TaskRequest{
		Streaming: dashscope.StreamingDuplex,
		Task:      "asr",
		Function:  "recognition",
		Model:     p.Model,
		Parameters: map[string]interface{}{
			"format":         "wav",
			"sample_rate":    p.SampleRate,
			"language_hints": p.LanguageHints,
		},
	}, func(t *dashscope.Task) error {
		log.Debugf("paraformer任务 %s 发送 %s 音频", t.ID(), duration)
		for off := 0; off < len(wav); off += p.ChunkSize {
			end := off + p.ChunkSize
			if end > len(wav) {
				end = len(wav)
			}
			if err := t.SendAudio(wav[off:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("paraformer: %w", err)
	}

	texts := make([]string, 0)
	for _, s := range result.Sentences() {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(texts, " "))
	log.Debugf("耗时统计: paraformer 识别 %s 音频, %d ms, 结果: %s", duration, time.Since(startTs).Milliseconds(), text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
