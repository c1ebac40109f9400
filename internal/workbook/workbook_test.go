package workbook

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCheckExtension(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{name: "xlsx", file: "IRAS_v1.xlsx", wantErr: false},
		{name: "upper case xlsm", file: "questions.XLSM", wantErr: false},
		{name: "template", file: "set.xltx", wantErr: false},
		{name: "csv rejected", file: "set.csv", wantErr: true},
		{name: "legacy xls rejected", file: "set.xls", wantErr: true},
		{name: "no extension", file: "questions", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckExtension(tc.file)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestUnsupportedFileErrorListsAcceptedExtensions(t *testing.T) {
	err := CheckExtension("notes.docx")
	var ufe *UnsupportedFileError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnsupportedFileError, got %T", err)
	}
	for _, ext := range AcceptedExtensions {
		if !strings.Contains(err.Error(), ext) {
			t.Fatalf("message %q does not mention %s", err.Error(), ext)
		}
	}
}

func TestRowGetIgnoresCaseAndSpacing(t *testing.T) {
	s := NewSheet("Module1", []string{"Question Id", "SHORT_QUESTION_TEXT"}, [][]string{{" IQ1 ", "Age"}, {"IQ2"}})
	if got := s.Rows[0].Get("QuestionId"); got != "IQ1" {
		t.Fatalf("QuestionId got %q", got)
	}
	if got := s.Rows[0].Get("ShortQuestionText"); got != "Age" {
		t.Fatalf("ShortQuestionText got %q", got)
	}
	if got := s.Rows[1].Get("ShortQuestionText"); got != "" {
		t.Fatalf("expected empty value for short row, got %q", got)
	}
	if got := s.Rows[0].Get("Missing"); got != "" {
		t.Fatalf("expected empty value for unknown column, got %q", got)
	}
	if s.Rows[1].Number != 3 {
		t.Fatalf("expected row number 3, got %d", s.Rows[1].Number)
	}
}

func TestOpenReadsEncodedWorkbook(t *testing.T) {
	data, err := Encode(
		NewSheet(SheetContents, ContentsColumns, [][]string{{"Project", "A"}}),
		NewSheet("Project", ModuleColumns, [][]string{{"IQ1", "A", "S1", "1", "", "Age?", "Age", "Text", "Integer", "Mandatory", ""}}),
		NewSheet(SheetRules, RulesColumns, nil),
		NewSheet(SheetAnswerOptions, AnswerOptionsColumns, [][]string{{"OPT1", "Yes"}}),
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	wb, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := []string{SheetContents, "Project", SheetRules, SheetAnswerOptions}
	got := wb.SheetNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("sheet names got %v want %v", got, want)
	}

	project, ok := wb.Sheet("project")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to find Project")
	}
	if len(project.Rows) != 1 || project.Rows[0].Get("QuestionText") != "Age?" {
		t.Fatalf("unexpected project rows: %+v", project.Rows)
	}
	if err := Validate(wb); err != nil {
		t.Fatalf("expected valid workbook, got %v", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := Open(strings.NewReader("not a zip")); err == nil {
		t.Fatalf("expected error for non-xlsx content")
	}
}

func TestModuleSheetsDetection(t *testing.T) {
	wb := New(
		NewSheet(SheetContents, ContentsColumns, [][]string{{"Legacy", "B"}}),
		NewSheet("Project", ModuleColumns, nil),
		NewSheet("Notes", []string{"Text"}, nil),
		NewSheet("Legacy", []string{"Id"}, nil),
		NewSheet(SheetRules, RulesColumns, nil),
	)

	mods := wb.ModuleSheets()
	if len(mods) != 2 || mods[0].Name != "Project" || mods[1].Name != "Legacy" {
		names := make([]string, 0, len(mods))
		for _, m := range mods {
			names = append(names, m.Name)
		}
		t.Fatalf("unexpected module sheets: %v", names)
	}
}

func TestValidateReportsMissingSheetsAndColumns(t *testing.T) {
	wb := New(
		NewSheet(SheetContents, []string{"Tab"}, nil),
		NewSheet("Project", []string{"QuestionId", "Category", "Section"}, nil),
		NewSheet(SheetAnswerOptions, AnswerOptionsColumns, nil),
	)

	err := Validate(wb)
	var se *StructureError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructureError, got %v", err)
	}

	byName := map[string]SheetProblem{}
	for _, p := range se.Problems {
		byName[p.Sheet] = p
	}
	if p := byName[SheetContents]; len(p.MissingColumns) != 1 || p.MissingColumns[0] != "Category" {
		t.Fatalf("unexpected contents problem: %+v", p)
	}
	if p := byName[SheetRules]; !p.MissingSheet {
		t.Fatalf("expected missing Rules sheet, got %+v", p)
	}
	if p := byName["Project"]; len(p.MissingColumns) != 8 {
		t.Fatalf("expected 8 missing module columns, got %+v", p)
	}
	if !strings.Contains(err.Error(), "missing sheet: Rules") {
		t.Fatalf("message should name the missing sheet: %s", err.Error())
	}
}

func TestValidateRequiresModuleSheet(t *testing.T) {
	wb := New(
		NewSheet(SheetContents, ContentsColumns, nil),
		NewSheet(SheetRules, RulesColumns, nil),
		NewSheet(SheetAnswerOptions, AnswerOptionsColumns, nil),
	)
	if err := Validate(wb); err == nil {
		t.Fatalf("expected error when no module sheet exists")
	}
}

func TestTemplateIsValid(t *testing.T) {
	data, err := Template("")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	wb, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open template: %v", err)
	}
	if err := Validate(wb); err != nil {
		t.Fatalf("template should validate, got %v", err)
	}
}
