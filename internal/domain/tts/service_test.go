package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/dashscope"
	"cn-chinese-link/internal/domain/tts/cosyvoice"
	"cn-chinese-link/internal/domain/tts/edge"
)

type fakeProvider struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

func TestServiceFallback(t *testing.T) {
	failing := &fakeProvider{err: errors.New("boom")}
	empty := &fakeProvider{}
	ok := &fakeProvider{audio: []byte("mp3")}
	female := &fakeProvider{audio: []byte("female")}

	s := NewService(
		[]Named{{"cosyvoice", failing}, {"edge", empty}, {"sambert", ok}},
		[]Named{{"sambert", female}},
		nil,
	)

	audio, err := s.Synthesize(context.Background(), "你好", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)

	audio, err = s.Synthesize(context.Background(), "你好", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("female"), audio)
	assert.Equal(t, 1, failing.calls)
}

func TestServiceAllFailed(t *testing.T) {
	s := NewService(nil, []Named{{"sambert", &fakeProvider{err: errors.New("quota")}}}, nil)

	_, err := s.Synthesize(context.Background(), "你好", false)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Contains(t, err.Error(), "quota")

	_, err = s.Synthesize(context.Background(), "你好", true)
	assert.ErrorIs(t, err, ErrSynthesisFailed)

	_, err = s.Synthesize(context.Background(), "   ", false)
	assert.ErrorIs(t, err, ErrSynthesisFailed)

	denied := &dashscope.Error{Code: "InvalidApiKey", Message: "Invalid API-key provided."}
	s = NewService(nil, []Named{{"sambert", &fakeProvider{err: denied}}}, nil)
	_, err = s.Synthesize(context.Background(), "你好", false)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	dsErr, ok := dashscope.AsError(err)
	require.True(t, ok)
	assert.True(t, dsErr.IsAuth())
}

func TestBuildChain(t *testing.T) {
	client := dashscope.NewClient("key")
	configs := map[string]map[string]interface{}{
		constants.TtsTypeCosyvoice: {"voice": "longxiaochun"},
	}

	chain, err := BuildChain([]string{"cosyvoice", " ", "edge"}, configs, client, "male")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "longxiaochun", chain[0].Provider.(*cosyvoice.CosyVoiceTTSProvider).Voice)
	assert.Equal(t, edge.VoiceMale, chain[1].Provider.(*edge.EdgeTTSProvider).Voice)

	_, err = BuildChain([]string{"unknown"}, nil, client, "female")
	assert.Error(t, err)

	_, err = BuildChain(nil, nil, client, "female")
	assert.Error(t, err)

	_, err = BuildChain([]string{"sambert"}, nil, nil, "female")
	assert.Error(t, err)
}
