package rules

import (
	"fmt"
	"strings"

	"govportal/internal/questionset"
)

type IssueKind string

const (
	IssueRequired       IssueKind = "required"
	IssueHiddenAnswered IssueKind = "hidden_answered"
	IssueUnknownOption  IssueKind = "unknown_option"
)

// Issue is a per-question problem found when re-validating submitted answers.
type Issue struct {
	QuestionID string    `json:"question_id"`
	Kind       IssueKind `json:"kind"`
	Message    string    `json:"message"`
}

// Resolve evaluates every question, drops answers to questions that do not apply and repeats
// until nothing changes, so answers to a hidden parent never open its children.
// The input map is not modified.
func Resolve(questions []questionset.Question, answers map[string]AnswerRecord) (map[string]Applicability, map[string]AnswerRecord) {
	kept := make(map[string]AnswerRecord, len(answers))
	for k, v := range answers {
		kept[k] = v
	}

	result := make(map[string]Applicability, len(questions))
	for pass := 0; pass <= len(questions); pass++ {
		changed := false
		for _, q := range questions {
			a := Evaluate(q, kept)
			result[q.QuestionID] = a
			if !a.Visible {
				if _, ok := kept[q.QuestionID]; ok {
					delete(kept, q.QuestionID)
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return result, kept
}

// Prune returns answers without the ones recorded for questions that do not apply.
func Prune(questions []questionset.Question, answers map[string]AnswerRecord) map[string]AnswerRecord {
	_, kept := Resolve(questions, answers)
	return kept
}

// Validate re-checks submitted answers against questions: applicable mandatory questions must
// be answered, hidden questions must not carry answers and choice answers must name known options.
// Issues follow the order of questions.
func Validate(questions []questionset.Question, answers map[string]AnswerRecord) []Issue {
	applicability, _ := Resolve(questions, answers)

	var issues []Issue
	for _, q := range questions {
		a := applicability[q.QuestionID]
		rec, has := answers[q.QuestionID]
		answered := has && rec.Answered()

		switch {
		case !a.Visible && answered:
			issues = append(issues, Issue{
				QuestionID: q.QuestionID,
				Kind:       IssueHiddenAnswered,
				Message:    fmt.Sprintf("%s does not apply and its answer will be discarded", label(q)),
			})
		case a.Mandatory && !answered:
			issues = append(issues, Issue{
				QuestionID: q.QuestionID,
				Kind:       IssueRequired,
				Message:    fmt.Sprintf("%s is required", label(q)),
			})
		case answered && len(q.Answers) > 0:
			for _, sel := range rec.Selected {
				if !knownOption(q.Answers, sel) {
					issues = append(issues, Issue{
						QuestionID: q.QuestionID,
						Kind:       IssueUnknownOption,
						Message:    fmt.Sprintf("%s has no option %q", label(q), sel),
					})
				}
			}
		}
	}
	return issues
}

func knownOption(options []questionset.Answer, v string) bool {
	v = strings.TrimSpace(v)
	for _, o := range options {
		if strings.EqualFold(o.AnswerID, v) || strings.EqualFold(o.AnswerText, v) {
			return true
		}
	}
	return false
}

func label(q questionset.Question) string {
	if q.ShortQuestionText != "" {
		return q.ShortQuestionText
	}
	return q.QuestionID
}
