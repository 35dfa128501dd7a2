package tokenizer

import "unicode"

// EstimatorTokenizer 按字符类别估算 token 数，不依赖任何编码数据
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer 创建估算器
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

// CJK 约 1.5 字符/token，其余约 4 字符/token
func runeCost(r rune) float64 {
	if isCJK(r) {
		return 1 / 1.5
	}
	return 1 / 4.0
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cost float64
	for _, r := range text {
		cost += runeCost(r)
	}
	estimated := int(cost)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// 汉字、假名、谚文以及全角标点按 CJK 计费
var cjkTables = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

func isCJK(r rune) bool {
	if r >= 0x3000 && r <= 0x303F || r >= 0xFF00 && r <= 0xFFEF {
		return true
	}
	return unicode.IsOneOf(cjkTables, r)
}
