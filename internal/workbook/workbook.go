package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	SheetContents      = "Contents"
	SheetRules         = "Rules"
	SheetAnswerOptions = "AnswerOptions"
)

var (
	ContentsColumns = []string{"Tab", "Category"}
	ModuleColumns   = []string{
		"QuestionId", "Category", "Section", "Sequence", "Heading", "QuestionText",
		"ShortQuestionText", "QuestionType", "DataType", "Conformance", "Answers",
	}
	RulesColumns = []string{
		"RuleId", "QuestionId", "Sequence", "ParentQuestionId", "Mode", "Description",
		"ConditionMode", "ConditionOperator", "ConditionValue", "ConditionNegate",
		"ConditionParentOptions", "ConditionOptionType", "ConditionDescription",
	}
	AnswerOptionsColumns = []string{"OptionId", "OptionText"}
)

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// Workbook is an in-memory copy of every worksheet of an uploaded file.
type Workbook struct {
	sheets []*Sheet
	byName map[string]*Sheet
}

// New assembles a workbook from already parsed sheets, keeping their order.
func New(sheets ...*Sheet) *Workbook {
	wb := &Workbook{byName: make(map[string]*Sheet, len(sheets))}
	for _, s := range sheets {
		if s == nil {
			continue
		}
		wb.sheets = append(wb.sheets, s)
		wb.byName[strings.ToLower(s.Name)] = s
	}
	return wb
}

// Open reads every worksheet of an xlsx-family document. The first row of each sheet is its header.
func Open(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, ErrEmptyWorkbook
	}

	sheets := make([]*Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read rows %s: %w", name, err)
		}
		if len(rows) == 0 {
			sheets = append(sheets, NewSheet(name, nil, nil))
			continue
		}
		sheets = append(sheets, NewSheet(name, rows[0], rows[1:]))
	}
	return New(sheets...), nil
}

// Encode writes sheets into a new xlsx document, header first.
func Encode(sheets ...*Sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", s.Name, err)
		}
		for col, h := range s.Header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(s.Name, cell, h)
		}
		for _, row := range s.Rows {
			for col, v := range row.Cells {
				cell, _ := excelize.CoordinatesToCellName(col+1, row.Number)
				_ = f.SetCellValue(s.Name, cell, v)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// Template returns an empty workbook carrying the required headers of every sheet.
func Template(moduleSheet string) ([]byte, error) {
	if strings.TrimSpace(moduleSheet) == "" {
		moduleSheet = "Module1"
	}
	return Encode(
		NewSheet(SheetContents, ContentsColumns, nil),
		NewSheet(moduleSheet, ModuleColumns, nil),
		NewSheet(SheetRules, RulesColumns, nil),
		NewSheet(SheetAnswerOptions, AnswerOptionsColumns, nil),
	)
}

// Sheet looks up a sheet by name, ignoring case.
func (wb *Workbook) Sheet(name string) (*Sheet, bool) {
	s, ok := wb.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// SheetNames lists sheet names in document order.
func (wb *Workbook) SheetNames() []string {
	out := make([]string, 0, len(wb.sheets))
	for _, s := range wb.sheets {
		out = append(out, s.Name)
	}
	return out
}

// ModuleSheets returns, in document order, the non-reserved sheets that either carry a
// QuestionId column or are named by a Tab value of the Contents sheet.
func (wb *Workbook) ModuleSheets() []*Sheet {
	referenced := map[string]bool{}
	if contents, ok := wb.Sheet(SheetContents); ok {
		for _, row := range contents.Rows {
			if tab := row.Get("Tab"); tab != "" {
				referenced[strings.ToLower(tab)] = true
			}
		}
	}

	var out []*Sheet
	for _, s := range wb.sheets {
		if isReserved(s.Name) {
			continue
		}
		if s.HasColumn("QuestionId") || referenced[strings.ToLower(s.Name)] {
			out = append(out, s)
		}
	}
	return out
}

func isReserved(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strings.ToLower(SheetContents), strings.ToLower(SheetRules), strings.ToLower(SheetAnswerOptions):
		return true
	default:
		return false
	}
}
