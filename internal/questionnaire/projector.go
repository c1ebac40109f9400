package questionnaire

import (
	"fmt"
	"sort"

	"govportal/internal/navigation"
	"govportal/internal/questionset"
	"govportal/internal/rules"
)

// IndexedQuestion carries the position used to map submitted form fields back to a question.
type IndexedQuestion struct {
	Index         int                  `json:"index"`
	Question      questionset.Question `json:"question"`
	Applicability rules.Applicability  `json:"applicability"`
}

// IndexOutOfRangeError is returned when a submitted index has no projected question.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("answer index %d out of range [0,%d)", e.Index, e.Count)
}

// Project returns the questions of sectionID ordered by (SectionID, Sequence) with zero-based
// indices. The result is deterministic for an unchanged question set. Callers must keep the
// projected list between render and submit instead of projecting again.
func Project(qs questionset.QuestionSet, sectionID string) ([]IndexedQuestion, error) {
	var picked []questionset.Question
	for _, q := range qs.Questions {
		if q.SectionID == sectionID {
			picked = append(picked, q.Clone())
		}
	}
	if len(picked) == 0 {
		return nil, &navigation.UnknownSectionError{VersionID: qs.Version.VersionID, SectionID: sectionID}
	}

	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].SectionID != picked[j].SectionID {
			return picked[i].SectionID < picked[j].SectionID
		}
		if picked[i].Sequence != picked[j].Sequence {
			return picked[i].Sequence < picked[j].Sequence
		}
		return picked[i].QuestionID < picked[j].QuestionID
	})

	out := make([]IndexedQuestion, len(picked))
	for i, q := range picked {
		out[i] = IndexedQuestion{Index: i, Question: q}
	}
	return out, nil
}

// ProjectWithAnswers projects sectionID and attaches the applicability of each question.
// Indices are assigned before applicability, so they do not depend on answers.
func ProjectWithAnswers(qs questionset.QuestionSet, sectionID string, answers map[string]rules.AnswerRecord) ([]IndexedQuestion, error) {
	items, err := Project(qs, sectionID)
	if err != nil {
		return nil, err
	}
	applicability, kept := rules.Resolve(qs.Questions, answers)
	for i := range items {
		items[i].Applicability = applicability[items[i].Question.QuestionID]
		items[i].Question = rules.Annotate(items[i].Question, kept)
	}
	return items, nil
}

// Correlate maps answers submitted by index back to question ids using a stored projection.
func Correlate(projected []IndexedQuestion, byIndex map[int]rules.AnswerRecord) (map[string]rules.AnswerRecord, error) {
	out := make(map[string]rules.AnswerRecord, len(byIndex))
	for idx, rec := range byIndex {
		if idx < 0 || idx >= len(projected) || projected[idx].Index != idx {
			return nil, &IndexOutOfRangeError{Index: idx, Count: len(projected)}
		}
		qid := projected[idx].Question.QuestionID
		rec.QuestionID = qid
		out[qid] = rec
	}
	return out, nil
}

// Questions unwraps the projected questions, keeping their order.
func Questions(projected []IndexedQuestion) []questionset.Question {
	out := make([]questionset.Question, len(projected))
	for i, p := range projected {
		out[i] = p.Question
	}
	return out
}
