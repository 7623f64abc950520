package edge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/difyz9/edge-tts-go/pkg/communicate"
	"github.com/spf13/cast"

	log "cn-chinese-link/logger"
)

const (
	VoiceMale   = "zh-CN-YunxiNeural"
	VoiceFemale = "zh-CN-XiaoxiaoNeural"
)

// EdgeTTSProvider Edge TTS 提供者，输出MP3
// 配置参数：voice, gender, rate, volume, pitch, proxy, connect_timeout, receive_timeout
type EdgeTTSProvider struct {
	Voice          string
	Rate           string
	Volume         string
	Pitch          string
	Proxy          string
	ConnectTimeout int
	ReceiveTimeout int
}

// NewEdgeTTSProvider 创建EdgeTTSProvider，未指定voice时按gender选择
func NewEdgeTTSProvider(config map[string]interface{}) *EdgeTTSProvider {
	voice := cast.ToString(config["voice"])
	rate := cast.ToString(config["rate"])
	volume := cast.ToString(config["volume"])
	pitch := cast.ToString(config["pitch"])
	connectTimeout := cast.ToInt(config["connect_timeout"])
	receiveTimeout := cast.ToInt(config["receive_timeout"])
	if voice == "" {
		voice = VoiceFemale
		if cast.ToString(config["gender"]) == "male" {
			voice = VoiceMale
		}
	}
	if rate == "" {
		rate = "+0%"
	}
	if volume == "" {
		volume = "+0%"
	}
	if pitch == "" {
		pitch = "+0Hz"
	}
	if connectTimeout == 0 {
		connectTimeout = 10
	}
	if receiveTimeout == 0 {
		receiveTimeout = 60
	}
	return &EdgeTTSProvider{
		Voice:          voice,
		Rate:           rate,
		Volume:         volume,
		Pitch:          pitch,
		Proxy:          cast.ToString(config["proxy"]),
		ConnectTimeout: connectTimeout,
		ReceiveTimeout: receiveTimeout,
	}
}

// Synthesize 流式接收音频块，拼成完整MP3
func (p *EdgeTTSProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("edge: 文本为空")
	}
	startTs := time.Now()
	comm, err := communicate.NewCommunicate(
		text,
		p.Voice,
		p.Rate,
		p.Volume,
		p.Pitch,
		p.Proxy,
		p.ConnectTimeout,
		p.ReceiveTimeout,
	)
	if err != nil {
		log.Errorf("EdgeTTS Communicate创建失败: %v", err)
		return nil, err
	}

	chunkChan, errChan := comm.Stream(ctx)
	var buf bytes.Buffer
	for chunk := range chunkChan {
		if chunk.Type == "audio" {
			buf.Write(chunk.Data)
		}
	}
	select {
	case err := <-errChan:
		if err != nil {
			return nil, fmt.Errorf("edge: %w", err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if buf.Len() == 0 {
		return nil, errors.New("edge: 未返回音频")
	}
	log.Debugf("耗时统计: edge %s 合成 %d 字节, %d ms", p.Voice, buf.Len(), time.Since(startTs).Milliseconds())
	return buf.Bytes(), nil
}
