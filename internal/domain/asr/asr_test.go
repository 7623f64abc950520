package asr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cn-chinese-link/internal/domain/asr/paraformer"
	"cn-chinese-link/internal/domain/dashscope"
)

func TestNewAsrProvider(t *testing.T) {
	client := dashscope.NewClient("key")

	p, err := NewAsrProvider("paraformer", map[string]interface{}{"model": "paraformer-realtime-8k-v2"}, client)
	assert.NoError(t, err)
	assert.Equal(t, "paraformer-realtime-8k-v2", p.(*paraformer.ParaformerProvider).Model)

	_, err = NewAsrProvider("", nil, client)
	assert.NoError(t, err)

	_, err = NewAsrProvider("paraformer", nil, nil)
	assert.Error(t, err)

	_, err = NewAsrProvider("funasr", nil, client)
	assert.Error(t, err)
}
