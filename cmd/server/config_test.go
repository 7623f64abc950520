package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/domain/dashscope/dashscopetest"
	"cn-chinese-link/internal/domain/tts/sambert"
)

func TestInitConfigDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, initConfig(v, filepath.Join(t.TempDir(), "missing.yaml")))

	assert.Equal(t, 8080, v.GetInt("server.port"))
	assert.Equal(t, "memory", v.GetString("session.store"))
	assert.Equal(t, "deepseek", v.GetString("llm.provider"))
	assert.Equal(t, []string{"cosyvoice", "sambert"}, v.GetStringSlice("tts.male"))
	assert.Equal(t, []string{"sambert"}, v.GetStringSlice("tts.female"))
	assert.Equal(t, time.Hour, durationOr(v, "tts.cache_ttl", 0))
	assert.Equal(t, 168*time.Hour, durationOr(v, "session.ttl", 0))
	assert.Equal(t, 5*time.Minute, durationOr(v, "not.set", 5*time.Minute))
}

func TestInitConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
admin:
  password: from-file
tts:
  male: [edge]
  edge:
    rate: "+10%"
sqlite:
  path: data/app.db
`), 0o644))

	t.Setenv("ADMIN_PASSWORD", "from-env")
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	v := viper.New()
	require.NoError(t, initConfig(v, path))
	assert.Equal(t, 9090, v.GetInt("server.port"))
	assert.Equal(t, "from-env", v.GetString("admin.password"))
	assert.Equal(t, "sk-test", v.GetString("dashscope.api_key"))
	assert.Equal(t, "data/app.db", sqliteConfig(v).Path)
	assert.Equal(t, 9090, serverConfig(v).Port)

	cfgs := providerConfigs(v, "tts", v.GetStringSlice("tts.male"))
	assert.Equal(t, "+10%", cfgs["edge"]["rate"])
}

func TestInitConfigUnsupportedExt(t *testing.T) {
	assert.Error(t, initConfig(viper.New(), "config/config.toml"))
}

func TestDashscopeOptions(t *testing.T) {
	srv := dashscopetest.NewServer(t, dashscopetest.WithAudio([]byte("ID3-audio")))

	v := viper.New()
	require.NoError(t, initConfig(v, ""))
	v.Set("dashscope.ws_url", srv.URL())

	opts, err := dashscopeOptions(v)
	require.NoError(t, err)
	p := sambert.NewSambertTTSProvider(map[string]interface{}{}, dashscope.NewClient("sk-test", opts...))
	audio, err := p.Synthesize(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), audio)

	// 显式代理优先于环境变量，代理不可达时连接失败
	v.Set("dashscope.proxy", "http://127.0.0.1:1")
	v.Set("dashscope.handshake_timeout", "1s")
	opts, err = dashscopeOptions(v)
	require.NoError(t, err)
	p = sambert.NewSambertTTSProvider(map[string]interface{}{}, dashscope.NewClient("sk-test", opts...))
	_, err = p.Synthesize(context.Background(), "你好")
	assert.Error(t, err)

	v.Set("dashscope.proxy", "://bad")
	_, err = dashscopeOptions(v)
	assert.Error(t, err)
}
