package edge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEdgeTTSProvider(t *testing.T) {
	p := NewEdgeTTSProvider(map[string]interface{}{})
	assert.Equal(t, VoiceFemale, p.Voice)
	assert.Equal(t, "+0%", p.Rate)
	assert.Equal(t, "+0Hz", p.Pitch)
	assert.Equal(t, 10, p.ConnectTimeout)
	assert.Equal(t, 60, p.ReceiveTimeout)

	p = NewEdgeTTSProvider(map[string]interface{}{"gender": "male"})
	assert.Equal(t, VoiceMale, p.Voice)

	p = NewEdgeTTSProvider(map[string]interface{}{"gender": "male", "voice": "zh-CN-YunjianNeural", "connect_timeout": "5"})
	assert.Equal(t, "zh-CN-YunjianNeural", p.Voice)
	assert.Equal(t, 5, p.ConnectTimeout)
}

func TestSynthesizeEmpty(t *testing.T) {
	_, err := NewEdgeTTSProvider(nil).Synthesize(context.Background(), "")
	assert.Error(t, err)
}

// 需要外网，设置EDGE_TTS_TEST=1时运行
func TestEdgeTTSProvider(t *testing.T) {
	if os.Getenv("EDGE_TTS_TEST") == "" {
		t.Skip("EDGE_TTS_TEST not set")
	}
	provider := NewEdgeTTSProvider(map[string]interface{}{"gender": "female"})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audio, err := provider.Synthesize(ctx, "你好，EdgeTTS测试")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)
}
