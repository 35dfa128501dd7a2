// Package feature 定义 FeatureSet（类别 → 描述词 → 置信度）及其纯函数操作。
package feature

import (
	"sort"
)

// FeatureSet maps a category name to descriptor terms and their confidence in [0,1].
// Empty categories are never stored.
type FeatureSet map[string]map[string]float64

// Category 描述固定词表中的一个类别
type Category struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Categories 固定类别词表（顺序即展示顺序）
var Categories = []Category{
	{ID: "color", Label: "Color", Description: "Color palette and tones"},
	{ID: "style", Label: "Style", Description: "Artistic style and technique"},
	{ID: "composition", Label: "Composition", Description: "Layout and arrangement"},
	{ID: "lighting", Label: "Lighting", Description: "Light and shadow effects"},
	{ID: "mood", Label: "Mood", Description: "Emotional atmosphere"},
	{ID: "object", Label: "Object", Description: "Any subject or entity in the scene: cars, people, animals, etc."},
	{ID: "perspective", Label: "Perspective", Description: "Viewpoint and depth"},
	{ID: "detail", Label: "Detail", Description: "Level of detail and complexity"},
	{ID: "texture", Label: "Texture", Description: "Surface qualities"},
	{ID: "medium", Label: "Medium", Description: "Artistic medium or material"},
}

// IsKnownCategory reports whether id belongs to the fixed vocabulary.
func IsKnownCategory(id string) bool {
	for _, c := range Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Merge unions a and b per category. A term present in both keeps the larger score.
// Neither input is modified.
func Merge(a, b FeatureSet) FeatureSet {
	out := make(FeatureSet, len(a)+len(b))
	for _, src := range []FeatureSet{a, b} {
		for category, terms := range src {
			if len(terms) == 0 {
				continue
			}
			dst, ok := out[category]
			if !ok {
				dst = make(map[string]float64, len(terms))
				out[category] = dst
			}
			for term, score := range terms {
				if cur, seen := dst[term]; !seen || score > cur {
					dst[term] = score
				}
			}
		}
	}
	return out
}

// Clone 深拷贝，并顺带丢弃空类别
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for category, terms := range fs {
		if len(terms) == 0 {
			continue
		}
		cp := make(map[string]float64, len(terms))
		for t, s := range terms {
			cp[t] = s
		}
		out[category] = cp
	}
	return out
}

// IsEmpty reports whether no category carries a term.
func (fs FeatureSet) IsEmpty() bool {
	for _, terms := range fs {
		if len(terms) > 0 {
			return false
		}
	}
	return true
}

// ActiveCategories returns the sorted names of non-empty categories.
func (fs FeatureSet) ActiveCategories() []string {
	out := make([]string, 0, len(fs))
	for category, terms := range fs {
		if len(terms) > 0 {
			out = append(out, category)
		}
	}
	sort.Strings(out)
	return out
}

// Term 是一个带分数的描述词
type Term struct {
	Category string
	Term     string
	Score    float64
}

// SortedTerms 按类别名升序、分数降序、词升序展开，用于生成稳定的文本
func (fs FeatureSet) SortedTerms() []Term {
	var out []Term
	for _, category := range fs.ActiveCategories() {
		for term, score := range fs[category] {
			out = append(out, Term{Category: category, Term: term, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// TermsOf returns the sorted term list of one category.
func (fs FeatureSet) TermsOf(category string) []string {
	terms := fs[category]
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
