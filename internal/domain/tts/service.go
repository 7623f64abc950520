package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/observe"
	log "cn-chinese-link/logger"
)

var ErrSynthesisFailed = errors.New("语音合成失败")

// Named 链路中的一个提供者
type Named struct {
	Name     string
	Provider TTSProvider
}

// Service 按角色性别选择合成链路，前一个失败或无音频时依次降级
type Service struct {
	male    []Named
	female  []Named
	metrics *observe.Metrics
}

func NewService(male, female []Named, metrics *observe.Metrics) *Service {
	return &Service{male: male, female: female, metrics: metrics}
}

// BuildChain 根据名字列表和各自配置构造链路，gender会传给按性别选音色的提供者
func BuildChain(names []string, configs map[string]map[string]interface{}, client *dashscope.Client, gender string) ([]Named, error) {
	chain := make([]Named, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		config := map[string]interface{}{"gender": gender}
		for k, v := range configs[name] {
			config[k] = v
		}
		provider, err := GetTTSProvider(name, config, client)
		if err != nil {
			return nil, err
		}
		chain = append(chain, Named{Name: name, Provider: provider})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%s TTS链路为空", gender)
	}
	return chain, nil
}

// Synthesize 合成文本，返回MP3
func (s *Service) Synthesize(ctx context.Context, text string, male bool) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: 文本为空", ErrSynthesisFailed)
	}
	chain := s.female
	if male {
		chain = s.male
	}

	var lastErr error
	for _, p := range chain {
		startTs := time.Now()
		audio, err := p.Provider.Synthesize(ctx, text)
		if err == nil && len(audio) == 0 {
			err = errors.New("empty audio")
		}
		s.metrics.RecordProvider(ctx, "tts", p.Name, startTs, err)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if dsErr, ok := dashscope.AsError(err); ok && dsErr.IsAuth() {
			log.Errorf("%s 鉴权失败，请检查DASHSCOPE_API_KEY: %v", p.Name, err)
		} else {
			log.Warnf("%s 语音合成失败，尝试下一个: %v", p.Name, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: 没有可用的TTS", ErrSynthesisFailed)
	}
	return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, lastErr)
}
