package questionset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateVersion = errors.New("question set version already exists")
	ErrVersionNotFound  = errors.New("question set version not found")
	ErrNoActiveVersion  = errors.New("no published question set version")
)

// IncompleteBuildError is returned when a builder step runs before its prerequisites.
type IncompleteBuildError struct {
	Missing string
}

func (e *IncompleteBuildError) Error() string {
	return fmt.Sprintf("incomplete question set build: %s not set", e.Missing)
}

type DuplicateVersionError struct {
	VersionID string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("version %q already exists", e.VersionID)
}

func (e *DuplicateVersionError) Unwrap() error { return ErrDuplicateVersion }

type UnknownVersionError struct {
	VersionID string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unknown version %q", e.VersionID)
}

func (e *UnknownVersionError) Unwrap() error { return ErrVersionNotFound }

// IntegrityError lists identity violations that make a question set unusable.
type IntegrityError struct {
	Violations []string
}

func (e *IntegrityError) Error() string {
	return "question set integrity: " + strings.Join(e.Violations, "; ")
}

type WarningKind string

const (
	WarnUnresolvedAnswer    WarningKind = "unresolved_answer_option"
	WarnUnknownTab          WarningKind = "unrecognized_contents_tab"
	WarnDuplicateCategory   WarningKind = "duplicate_category"
	WarnRuleUnknownQuestion WarningKind = "rule_unknown_question"
	WarnRuleUnknownParent   WarningKind = "rule_unknown_parent"
	WarnRuleFieldMismatch   WarningKind = "rule_field_mismatch"
	WarnBadRuleID           WarningKind = "invalid_rule_id"
	WarnBadSequence         WarningKind = "invalid_sequence"
	WarnUnknownConformance  WarningKind = "unknown_conformance"
	WarnUnknownType         WarningKind = "unknown_question_type"
	WarnUnknownMode         WarningKind = "unknown_rule_mode"
	WarnUnknownOperator     WarningKind = "unknown_operator"
)

// Warning is a data-quality anomaly that did not stop ingestion.
type Warning struct {
	Kind       WarningKind `json:"kind"`
	Sheet      string      `json:"sheet,omitempty"`
	Row        int         `json:"row,omitempty"`
	QuestionID string      `json:"question_id,omitempty"`
	Detail     string      `json:"detail"`
}

func (w Warning) String() string {
	loc := w.Sheet
	if w.Row > 0 {
		loc = fmt.Sprintf("%s!%d", w.Sheet, w.Row)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s %s: %s", loc, w.Kind, w.Detail)
}
