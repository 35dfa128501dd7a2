package interpolate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/types"
)

// DefaultWeight 请求未给出 weight 时使用的权重
const DefaultWeight = 0.5

// Source 一组已分析的特征及其混合权重
type Source struct {
	SourcePrompt string             `json:"source_prompt"`
	Weight       float64            `json:"weight"`
	Features     feature.FeatureSet `json:"features"`
}

// UnmarshalJSON 兼容前端的 sourcePrompt 字段，缺省 weight 取 DefaultWeight
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw struct {
		SourcePrompt      string             `json:"source_prompt"`
		SourcePromptCamel string             `json:"sourcePrompt"`
		Weight            *float64           `json:"weight"`
		Features          feature.FeatureSet `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SourcePrompt = raw.SourcePrompt
	if s.SourcePrompt == "" {
		s.SourcePrompt = raw.SourcePromptCamel
	}
	s.Weight = DefaultWeight
	if raw.Weight != nil {
		s.Weight = *raw.Weight
	}
	s.Features = raw.Features
	return nil
}

// Input 特征集 ID → 来源
type Input map[string]Source

// IDs 返回按字典序排列的 ID
func (in Input) IDs() []string {
	ids := make([]string, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Weights 返回 ID → 权重
func (in Input) Weights() map[string]float64 {
	out := make(map[string]float64, len(in))
	for id, src := range in {
		out[id] = src.Weight
	}
	return out
}

func outOfUnit(v float64) bool {
	return math.IsNaN(v) || v < 0 || v > 1
}

// Validate 检查权重与特征分数都在 [0,1] 内，并要求至少两个正权重来源
func (in Input) Validate() error {
	positive := 0
	for _, id := range in.IDs() {
		w := in[id].Weight
		if outOfUnit(w) {
			return types.Validation("weight for feature %q must be within [0,1], got %v", id, w)
		}
		for _, t := range in[id].Features.SortedTerms() {
			if outOfUnit(t.Score) {
				return types.Validation("score for feature %q %s/%s must be within [0,1], got %v", id, t.Category, t.Term, t.Score)
			}
		}
		if w > 0 {
			positive++
		}
	}
	if positive < 2 {
		return types.Insufficient(positive)
	}
	return nil
}

// Percent 把 [0,1] 的分数换算为整数百分比
func Percent(v float64) int {
	return int(math.Round(v * 100))
}

// describe 渲染 "term (pct%), term (pct%)"
func describe(fs feature.FeatureSet) string {
	terms := fs.SortedTerms()
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf("%s (%d%%)", t.Term, Percent(t.Score))
	}
	return strings.Join(parts, ", ")
}

// RenderClause 返回送入合成调用的子句以及给调用方回显的摘要。
// 特征为空的来源返回 ok=false。
func RenderClause(id string, src Source) (clause, summary string, ok bool) {
	desc := describe(src.Features)
	if desc == "" {
		return "", "", false
	}
	pct := Percent(src.Weight)
	clause = fmt.Sprintf("Feature %s: %s with weight %d%%", id, desc, pct)
	summary = fmt.Sprintf("%s (weight: %d%%)", desc, pct)
	return clause, summary, true
}
