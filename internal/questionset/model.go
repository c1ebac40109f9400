package questionset

import "time"

type Version struct {
	VersionID    string    `json:"version_id"`
	CreatedAt    time.Time `json:"created_at"`
	IsDraft      bool      `json:"is_draft"`
	IsPublished  bool      `json:"is_published"`
	SourceDigest string    `json:"source_digest,omitempty"`
}

type Category struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	VersionID    string `json:"version_id"`
}

type Question struct {
	QuestionID        string       `json:"question_id"`
	VersionID         string       `json:"version_id"`
	Category          string       `json:"category"`
	SectionID         string       `json:"section_id"`
	Section           string       `json:"section"`
	Sequence          int          `json:"sequence"`
	Heading           *string      `json:"heading,omitempty"`
	QuestionText      string       `json:"question_text"`
	ShortQuestionText string       `json:"short_question_text"`
	QuestionType      QuestionType `json:"question_type"`
	DataType          string       `json:"data_type"`
	Conformance       Conformance  `json:"conformance"`
	IsMandatory       bool         `json:"is_mandatory"`
	IsOptional        bool         `json:"is_optional"`
	Answers           []Answer     `json:"answers,omitempty"`
	Rules             []Rule       `json:"rules,omitempty"`
}

type Answer struct {
	AnswerID   string `json:"answer_id"`
	AnswerText string `json:"answer_text"`
	VersionID  string `json:"version_id"`
}

type Rule struct {
	RuleID           int         `json:"rule_id"`
	QuestionID       string      `json:"question_id"`
	Sequence         int         `json:"sequence"`
	ParentQuestionID string      `json:"parent_question_id,omitempty"`
	Mode             RuleMode    `json:"mode"`
	Description      string      `json:"description"`
	VersionID        string      `json:"version_id"`
	Conditions       []Condition `json:"conditions"`
}

// Condition tests the answer recorded for the owning rule's parent question.
// IsApplicable is only set by rule evaluation, never at ingestion.
type Condition struct {
	Mode          RuleMode `json:"mode"`
	Operator      Operator `json:"operator"`
	Value         *string  `json:"value,omitempty"`
	Negate        bool     `json:"negate"`
	ParentOptions []string `json:"parent_options,omitempty"`
	OptionType    string   `json:"option_type"`
	Description   *string  `json:"description,omitempty"`
	IsApplicable  bool     `json:"is_applicable"`
}

// QuestionSet is the aggregate root built from one uploaded workbook.
type QuestionSet struct {
	Version    Version    `json:"version"`
	Categories []Category `json:"categories"`
	Questions  []Question `json:"questions"`
}

// Section is an ordered group of questions sharing a SectionID.
type Section struct {
	SectionID  string `json:"section_id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
}

// Question returns the question with the given id.
func (qs *QuestionSet) Question(id string) (Question, bool) {
	for _, q := range qs.Questions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Sections lists sections in the order they were first encountered during ingestion.
func (qs *QuestionSet) Sections() []Section {
	seen := make(map[string]bool)
	var out []Section
	for _, q := range qs.Questions {
		if seen[q.SectionID] {
			continue
		}
		seen[q.SectionID] = true
		out = append(out, Section{SectionID: q.SectionID, Name: q.Section, CategoryID: q.Category})
	}
	return out
}

// Clone returns a deep copy sharing no slices or pointers with qs.
func (qs QuestionSet) Clone() QuestionSet {
	out := QuestionSet{Version: qs.Version}
	if qs.Categories != nil {
		out.Categories = append([]Category(nil), qs.Categories...)
	}
	if qs.Questions != nil {
		out.Questions = make([]Question, len(qs.Questions))
		for i, q := range qs.Questions {
			out.Questions[i] = q.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	out := q
	if q.Heading != nil {
		h := *q.Heading
		out.Heading = &h
	}
	if q.Answers != nil {
		out.Answers = append([]Answer(nil), q.Answers...)
	}
	if q.Rules != nil {
		out.Rules = make([]Rule, len(q.Rules))
		for i, r := range q.Rules {
			out.Rules[i] = r.Clone()
		}
	}
	return out
}

func (r Rule) Clone() Rule {
	out := r
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		for i, c := range r.Conditions {
			out.Conditions[i] = c.Clone()
		}
	}
	return out
}

func (c Condition) Clone() Condition {
	out := c
	if c.Value != nil {
		v := *c.Value
		out.Value = &v
	}
	if c.Description != nil {
		d := *c.Description
		out.Description = &d
	}
	if c.ParentOptions != nil {
		out.ParentOptions = append([]string(nil), c.ParentOptions...)
	}
	return out
}
