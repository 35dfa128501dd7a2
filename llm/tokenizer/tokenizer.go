package tokenizer

import "sync"

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// fallback 先用 primary，初始化失败后永久切换到 secondary.
type fallback struct {
	primary   Tokenizer
	secondary Tokenizer

	mu     sync.Mutex
	failed bool
}

// WithFallback 组合两个分词器：primary 报错时改用 secondary 并记住该决定.
func WithFallback(primary, secondary Tokenizer) Tokenizer {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) active() Tokenizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return f.secondary
	}
	return f.primary
}

func (f *fallback) markFailed() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

func (f *fallback) CountTokens(text string) (int, error) {
	t := f.active()
	n, err := t.CountTokens(text)
	if err != nil && t == f.primary {
		f.markFailed()
		return f.secondary.CountTokens(text)
	}
	return n, err
}

func (f *fallback) Name() string { return f.active().Name() }

// ForModel 返回模型对应的分词器：tiktoken 优先，估算器兜底.
func ForModel(model string) Tokenizer {
	return WithFallback(NewTiktokenTokenizer(model), NewEstimatorTokenizer())
}
