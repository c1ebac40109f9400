package questionset

import "strings"

type Conformance string

const (
	ConformanceMandatory Conformance = "Mandatory"
	ConformanceOptional  Conformance = "Optional"
	ConformanceUnknown   Conformance = "Unknown"
)

// ParseConformance maps the sheet value exactly; anything else is ConformanceUnknown.
func ParseConformance(v string) Conformance {
	switch strings.TrimSpace(v) {
	case string(ConformanceMandatory):
		return ConformanceMandatory
	case string(ConformanceOptional):
		return ConformanceOptional
	default:
		return ConformanceUnknown
	}
}

type QuestionType string

const (
	QuestionTypeText       QuestionType = "Text"
	QuestionTypeRichText   QuestionType = "Rich Text"
	QuestionTypeBoolean    QuestionType = "Boolean"
	QuestionTypeRadio      QuestionType = "Radio button"
	QuestionTypeCheckbox   QuestionType = "Checkbox"
	QuestionTypeLookupList QuestionType = "Look-up list"
	QuestionTypeDate       QuestionType = "Date"
	QuestionTypeEmail      QuestionType = "Email"
	QuestionTypeUnknown    QuestionType = "Unknown"
)

// ParseQuestionType normalizes the many spellings found in sheets.
func ParseQuestionType(v string) QuestionType {
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(v)))
	switch key {
	case "text", "textbox", "freetext":
		return QuestionTypeText
	case "richtext", "textarea":
		return QuestionTypeRichText
	case "boolean", "yesno":
		return QuestionTypeBoolean
	case "radio", "radiobutton", "radiobuttons":
		return QuestionTypeRadio
	case "checkbox", "checkboxes":
		return QuestionTypeCheckbox
	case "lookuplist", "lookup", "dropdown":
		return QuestionTypeLookupList
	case "date":
		return QuestionTypeDate
	case "email":
		return QuestionTypeEmail
	default:
		return QuestionTypeUnknown
	}
}

// IsChoice reports whether answers are picked from answer options.
func (t QuestionType) IsChoice() bool {
	switch t {
	case QuestionTypeBoolean, QuestionTypeRadio, QuestionTypeCheckbox, QuestionTypeLookupList:
		return true
	default:
		return false
	}
}

type RuleMode string

const (
	ModeAnd RuleMode = "And"
	ModeOr  RuleMode = "Or"
)

// ParseRuleMode returns ModeAnd for blank or unknown values; ok is false for unknown ones.
func ParseRuleMode(v string) (RuleMode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "and", "":
		return ModeAnd, true
	case "or":
		return ModeOr, true
	default:
		return ModeAnd, false
	}
}

type Operator string

const (
	OpIn          Operator = "IN"
	OpExclude     Operator = "EXCLUDE"
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpContains    Operator = "CONTAINS"
	OpGreaterThan Operator = "GREATER_THAN"
	OpLessThan    Operator = "LESS_THAN"
	OpAnswered    Operator = "ANSWERED"
	OpUnknown     Operator = "UNKNOWN"
)

// ParseOperator maps blank to OpIn.
func ParseOperator(v string) Operator {
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToUpper(strings.TrimSpace(v)))
	switch key {
	case "", "IN", "OPTIONS":
		return OpIn
	case "EXCLUDE", "NOT_IN":
		return OpExclude
	case "EQUALS", "EQ", "=", "==":
		return OpEquals
	case "NOT_EQUALS", "NE", "!=", "<>":
		return OpNotEquals
	case "CONTAINS":
		return OpContains
	case "GREATER_THAN", "GT", ">":
		return OpGreaterThan
	case "LESS_THAN", "LT", "<":
		return OpLessThan
	case "ANSWERED", "NOT_EMPTY":
		return OpAnswered
	default:
		return OpUnknown
	}
}

// OptionTypeExact requires the selected options to equal ParentOptions.
const OptionTypeExact = "EXACT"

func normalizeOptionType(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
