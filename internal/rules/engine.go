package rules

import (
	"strconv"
	"strings"
	"time"

	"govportal/internal/questionset"
)

// Applicability is the computed state of a question for a given set of answers.
type Applicability struct {
	Visible   bool `json:"visible"`
	Mandatory bool `json:"mandatory"`
	Optional  bool `json:"optional"`
}

// Evaluate decides whether q applies given answers keyed by question id.
// A question without rules always applies; otherwise any satisfied rule makes it apply.
// A question that does not apply is never mandatory.
func Evaluate(q questionset.Question, answers map[string]AnswerRecord) Applicability {
	visible := len(q.Rules) == 0
	for _, r := range q.Rules {
		if RuleSatisfied(r, answers) {
			visible = true
			break
		}
	}
	return Applicability{
		Visible:   visible,
		Mandatory: visible && q.IsMandatory,
		Optional:  visible && q.IsOptional,
	}
}

// RuleSatisfied combines the rule's conditions under its Mode.
func RuleSatisfied(r questionset.Rule, answers map[string]AnswerRecord) bool {
	parent, answered := lookup(answers, r.ParentQuestionID)
	if r.Mode == questionset.ModeOr {
		for _, c := range r.Conditions {
			if conditionSatisfied(c, parent, answered) {
				return true
			}
		}
		return false
	}
	for _, c := range r.Conditions {
		if !conditionSatisfied(c, parent, answered) {
			return false
		}
	}
	return true
}

// Annotate returns a copy of q with IsApplicable set on every condition.
func Annotate(q questionset.Question, answers map[string]AnswerRecord) questionset.Question {
	out := q.Clone()
	for i := range out.Rules {
		parent, answered := lookup(answers, out.Rules[i].ParentQuestionID)
		for j := range out.Rules[i].Conditions {
			c := &out.Rules[i].Conditions[j]
			c.IsApplicable = conditionSatisfied(*c, parent, answered)
		}
	}
	return out
}

func lookup(answers map[string]AnswerRecord, questionID string) (AnswerRecord, bool) {
	if questionID == "" {
		return AnswerRecord{}, false
	}
	a, ok := answers[questionID]
	if !ok || !a.Answered() {
		return AnswerRecord{}, false
	}
	return a, true
}

// conditionSatisfied is fail-closed: an unanswered parent never satisfies a condition,
// negated or not.
func conditionSatisfied(c questionset.Condition, parent AnswerRecord, answered bool) bool {
	if !answered {
		return false
	}
	return matches(c, parent) != c.Negate
}

func matches(c questionset.Condition, parent AnswerRecord) bool {
	tokens := parent.tokens()
	target := ""
	if c.Value != nil {
		target = strings.TrimSpace(*c.Value)
	}
	options := c.ParentOptions
	if len(options) == 0 && target != "" {
		options = []string{target}
	}
	if target == "" && len(options) > 0 {
		target = options[0]
	}

	switch c.Operator {
	case questionset.OpIn:
		if c.OptionType == questionset.OptionTypeExact {
			return sameSet(tokens, options)
		}
		return intersects(tokens, options)
	case questionset.OpExclude:
		return !intersects(tokens, options)
	case questionset.OpEquals:
		return containsFold(tokens, target)
	case questionset.OpNotEquals:
		return !containsFold(tokens, target)
	case questionset.OpContains:
		if target == "" {
			return false
		}
		for _, t := range tokens {
			if strings.Contains(strings.ToLower(t), strings.ToLower(target)) {
				return true
			}
		}
		return false
	case questionset.OpGreaterThan:
		cmp, ok := compare(firstToken(parent), target)
		return ok && cmp > 0
	case questionset.OpLessThan:
		cmp, ok := compare(firstToken(parent), target)
		return ok && cmp < 0
	case questionset.OpAnswered:
		return true
	default:
		return false
	}
}

func firstToken(a AnswerRecord) string {
	if v := strings.TrimSpace(a.Value); v != "" {
		return v
	}
	for _, s := range a.Selected {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func intersects(tokens, options []string) bool {
	for _, t := range tokens {
		if containsFold(options, t) {
			return true
		}
	}
	return false
}

func sameSet(tokens, options []string) bool {
	if len(options) == 0 {
		return false
	}
	for _, t := range tokens {
		if !containsFold(options, t) {
			return false
		}
	}
	for _, o := range options {
		if !containsFold(tokens, o) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"}

// compare orders a and b numerically when both parse as numbers, else as dates.
func compare(a, b string) (int, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}
	if fa, err := strconv.ParseFloat(a, 64); err == nil {
		if fb, err := strconv.ParseFloat(b, 64); err == nil {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	ta, okA := parseDate(a)
	tb, okB := parseDate(b)
	if !okA || !okB {
		return 0, false
	}
	return ta.Compare(tb), true
}

func parseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
