package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/promptfusion/types"
)

// =============================================================================
// 🔍 严格解码（带标签的结果）
// =============================================================================

// DropReason 丢弃原因
type DropReason string

const (
	DropNotObject  DropReason = "not an object"
	DropNotNumber  DropReason = "not a number"
	DropOutOfRange DropReason = "out of range [0,1]"
	DropEmpty      DropReason = "no valid terms"
)

// Drop records one entry rejected during decoding.
type Drop struct {
	Category string     `json:"category"`
	Term     string     `json:"term,omitempty"`
	Reason   DropReason `json:"reason"`
	Raw      string     `json:"raw,omitempty"`
}

// DecodeResult is either a valid FeatureSet (possibly empty) with the list of
// rejected entries, or a whole-response parse failure in Err.
type DecodeResult struct {
	Features FeatureSet
	Dropped  []Drop
	Err      error
}

// OK reports whether the response parsed as a JSON object.
func (r DecodeResult) OK() bool { return r.Err == nil }

// Decode validates raw model output against the category → {term: score} schema.
// Entry-level violations are dropped and recorded; only a non-object top level is a failure.
func Decode(raw []byte) DecodeResult {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return DecodeResult{
			Features: FeatureSet{},
			Err:      types.NewError(types.ErrParse, "completion is not a JSON object").WithCause(err),
		}
	}
	if top == nil {
		return DecodeResult{
			Features: FeatureSet{},
			Err:      types.NewError(types.ErrParse, "completion is JSON null"),
		}
	}

	res := DecodeResult{Features: make(FeatureSet, len(top))}

	categories := make([]string, 0, len(top))
	for c := range top {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		var terms map[string]json.RawMessage
		body := bytes.TrimSpace(top[category])
		if len(body) == 0 || body[0] != '{' || json.Unmarshal(body, &terms) != nil {
			res.Dropped = append(res.Dropped, Drop{Category: category, Reason: DropNotObject, Raw: clip(body)})
			continue
		}

		kept := make(map[string]float64, len(terms))
		for term, rawScore := range terms {
			score, ok := parseNumber(rawScore)
			if !ok {
				res.Dropped = append(res.Dropped, Drop{Category: category, Term: term, Reason: DropNotNumber, Raw: clip(rawScore)})
				continue
			}
			if score < 0 || score > 1 {
				res.Dropped = append(res.Dropped, Drop{Category: category, Term: term, Reason: DropOutOfRange, Raw: clip(rawScore)})
				continue
			}
			kept[term] = score
		}

		if len(kept) == 0 {
			res.Dropped = append(res.Dropped, Drop{Category: category, Reason: DropEmpty})
			continue
		}
		res.Features[category] = kept
	}

	return res
}

// ParseCompletion decodes model text. If the first parse fails the markdown
// code fence is stripped and the text is parsed once more.
func ParseCompletion(text string) DecodeResult {
	first := Decode([]byte(strings.TrimSpace(text)))
	if first.OK() {
		return first
	}
	second := Decode([]byte(StripCodeFence(text)))
	if second.OK() {
		return second
	}
	second.Err = fmt.Errorf("after stripping code fence: %w", second.Err)
	return second
}

// StripCodeFence removes a leading ```json / ``` marker and a trailing ``` marker.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseNumber 仅接受 JSON number（字符串、布尔、null、对象均拒绝）
func parseNumber(raw json.RawMessage) (float64, bool) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0, false
	}
	if c := b[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clip(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
