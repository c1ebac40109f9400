package rules

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrMalformedPayload = errors.New("malformed answer payload")

// AnswerRecord is what a respondent recorded for one question. Choice questions fill Selected
// with answer option ids; free-text and date questions fill Value.
type AnswerRecord struct {
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected,omitempty"`
	Value      string   `json:"value,omitempty"`
}

// Answered reports whether the record carries any non-blank selection or value.
func (a AnswerRecord) Answered() bool {
	if strings.TrimSpace(a.Value) != "" {
		return true
	}
	for _, s := range a.Selected {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

func (a AnswerRecord) tokens() []string {
	out := make([]string, 0, len(a.Selected)+1)
	for _, s := range a.Selected {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if v := strings.TrimSpace(a.Value); v != "" {
		out = append(out, v)
	}
	return out
}

// ParseAnswerPayload accepts {"selected":"A"}, {"selected":["A","B"]}, {"value":"text"},
// a bare JSON string or a bare JSON array of strings. An empty payload is an unanswered record.
func ParseAnswerPayload(questionID string, raw json.RawMessage) (AnswerRecord, error) {
	rec := AnswerRecord{QuestionID: questionID}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return rec, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return rec, ErrMalformedPayload
		}
		rec.Value = strings.TrimSpace(s)
		return rec, nil
	case '[':
		sel, ok := parseSelection(raw)
		if !ok {
			return rec, ErrMalformedPayload
		}
		rec.Selected = sel
		return rec, nil
	case '{':
	default:
		return rec, ErrMalformedPayload
	}

	var obj struct {
		Selected json.RawMessage `json:"selected"`
		Value    *string         `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return rec, ErrMalformedPayload
	}
	if obj.Value != nil {
		rec.Value = strings.TrimSpace(*obj.Value)
	}
	if len(obj.Selected) > 0 && string(obj.Selected) != "null" {
		sel, ok := parseSelection(obj.Selected)
		if !ok {
			return rec, ErrMalformedPayload
		}
		rec.Selected = sel
	}
	return rec, nil
}

func parseSelection(raw json.RawMessage) ([]string, bool) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		one = strings.TrimSpace(one)
		if one == "" {
			return nil, true
		}
		return []string{one}, true
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, false
	}
	seen := make(map[string]bool, len(many))
	out := make([]string, 0, len(many))
	for _, s := range many {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, true
}
