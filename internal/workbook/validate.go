package workbook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AcceptedExtensions lists the upload formats the reader understands.
var AcceptedExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm"}

type UnsupportedFileError struct {
	FileName string
	Ext      string
}

func (e *UnsupportedFileError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("file %q has unsupported extension %s; accepted: %s",
		e.FileName, ext, strings.Join(AcceptedExtensions, ", "))
}

// CheckExtension rejects anything that is not a spreadsheet workbook format.
func CheckExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	for _, ok := range AcceptedExtensions {
		if ext == ok {
			return nil
		}
	}
	return &UnsupportedFileError{FileName: fileName, Ext: ext}
}

// SheetProblem describes one structural defect of a workbook.
type SheetProblem struct {
	Sheet          string   `json:"sheet"`
	MissingSheet   bool     `json:"missing_sheet,omitempty"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// StructureError collects every missing sheet and column found before ingestion.
type StructureError struct {
	Problems []SheetProblem
}

func (e *StructureError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.MissingSheet {
			parts = append(parts, fmt.Sprintf("missing sheet: %s", p.Sheet))
			continue
		}
		parts = append(parts, fmt.Sprintf("sheet %s missing columns: %s", p.Sheet, strings.Join(p.MissingColumns, ", ")))
	}
	return "invalid workbook: " + strings.Join(parts, "; ")
}

// Validate checks required sheets and columns. It returns *StructureError or nil.
func Validate(wb *Workbook) error {
	var problems []SheetProblem

	check := func(name string, cols []string) {
		s, ok := wb.Sheet(name)
		if !ok {
			problems = append(problems, SheetProblem{Sheet: name, MissingSheet: true})
			return
		}
		if missing := s.MissingColumns(cols); len(missing) > 0 {
			problems = append(problems, SheetProblem{Sheet: s.Name, MissingColumns: missing})
		}
	}

	check(SheetContents, ContentsColumns)

	modules := wb.ModuleSheets()
	if len(modules) == 0 {
		problems = append(problems, SheetProblem{Sheet: "module", MissingSheet: true})
	}
	for _, m := range modules {
		if missing := m.MissingColumns(ModuleColumns); len(missing) > 0 {
			problems = append(problems, SheetProblem{Sheet: m.Name, MissingColumns: missing})
		}
	}

	check(SheetRules, RulesColumns)
	check(SheetAnswerOptions, AnswerOptionsColumns)

	if len(problems) > 0 {
		return &StructureError{Problems: problems}
	}
	return nil
}
