package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer()
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcdefgh", 2},
		{"你好世界", 2},
	}
	for _, tt := range tests {
		n, err := e.CountTokens(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, tt.text)
	}
}

func TestEstimator_Property_MonotonicInLength(t *testing.T) {
	e := NewEstimatorTokenizer()
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-z 你好]{0,400}`).Draw(rt, "text")
		extra := rapid.StringMatching(`[a-z 你好]{0,40}`).Draw(rt, "extra")
		n, _ := e.CountTokens(text)
		m, _ := e.CountTokens(text + extra)
		if m < n {
			rt.Fatalf("count shrank from %d to %d after appending", n, m)
		}
	})
}

type brokenTokenizer struct{ calls int }

func (b *brokenTokenizer) CountTokens(string) (int, error) {
	b.calls++
	return 0, errors.New("bpe download failed")
}

func (b *brokenTokenizer) Name() string { return "broken" }

func TestWithFallback(t *testing.T) {
	broken := &brokenTokenizer{}
	tok := WithFallback(broken, NewEstimatorTokenizer())

	n, err := tok.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "estimator", tok.Name())

	n, err = tok.CountTokens("你好世界")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, broken.calls, "primary is not retried after failing")
}

func TestNewTiktokenTokenizer_Encoding(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("gpt-4").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("llama3").Name())
}
