package versions

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"govportal/internal/db"
	"govportal/internal/questionset"
	"govportal/internal/workbook"
)

func sampleWorkbook(t *testing.T) []byte {
	t.Helper()
	row := func(id, section, seq, text, qType, conformance, answers string) []string {
		return []string{id, "Project", section, seq, "", text, text, qType, "String", conformance, answers}
	}
	data, err := workbook.Encode(
		workbook.NewSheet(workbook.SheetContents, workbook.ContentsColumns, [][]string{{"Project", "Project"}}),
		workbook.NewSheet("Project", workbook.ModuleColumns, [][]string{
			row("IQ1", "S1", "1", "Do you agree?", "Radio button", "Mandatory", "OPT1,OPT2"),
			row("IQ2", "S1", "2", "Describe", "Text", "Mandatory", ""),
			row("IQ3", "S2", "1", "Email", "Email", "Optional", ""),
		}),
		workbook.NewSheet(workbook.SheetRules, workbook.RulesColumns, [][]string{
			{"1", "IQ2", "1", "IQ1", "And", "shown on yes", "And", "IN", "", "false", "OPT1", "Single", ""},
		}),
		workbook.NewSheet(workbook.SheetAnswerOptions, workbook.AnswerOptionsColumns, [][]string{
			{"OPT1", "Yes"},
			{"OPT2", "No"},
		}),
	)
	if err != nil {
		t.Fatalf("encode workbook: %v", err)
	}
	return data
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	svc, err := NewService(ctx, conn, db.DialectSQLite)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return svc
}

func TestImportStoresDraft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rep, err := svc.Import(ctx, "IRAS_v1.xlsx", bytes.NewReader(sampleWorkbook(t)))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if rep.VersionID != "IRAS_v1" || rep.Questions != 3 || rep.Sections != 2 || rep.Categories != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.SourceDigest) != 64 {
		t.Fatalf("expected blake2b-256 hex digest, got %q", rep.SourceDigest)
	}

	qs, err := svc.Get(ctx, "IRAS_v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !qs.Version.IsDraft || qs.Version.IsPublished {
		t.Fatalf("imported version should be a draft: %+v", qs.Version)
	}
	iq2, ok := qs.Question("IQ2")
	if !ok || len(iq2.Rules) != 1 || iq2.Rules[0].ParentQuestionID != "IQ1" {
		t.Fatalf("rules did not survive storage: %+v", iq2)
	}

	_, err = svc.Import(ctx, "IRAS_v1.xlsx", bytes.NewReader(sampleWorkbook(t)))
	var dup *questionset.DuplicateVersionError
	if !errors.As(err, &dup) || !errors.Is(err, questionset.ErrDuplicateVersion) {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestImportRejectsBadUploads(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "IRAS.xls", bytes.NewReader(sampleWorkbook(t)))
	var unsupported *workbook.UnsupportedFileError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFileError, got %v", err)
	}

	_, err = svc.Import(ctx, "IRAS.xlsx", strings.NewReader("not a zip"))
	if !errors.Is(err, ErrInvalidWorkbook) {
		t.Fatalf("expected ErrInvalidWorkbook, got %v", err)
	}

	_, err = svc.Import(ctx, "IRAS.xlsx", bytes.NewReader(nil))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty upload, got %v", err)
	}

	partial, _ := workbook.Encode(workbook.NewSheet(workbook.SheetContents, workbook.ContentsColumns, nil))
	_, err = svc.Import(ctx, "IRAS.xlsx", bytes.NewReader(partial))
	var structure *workbook.StructureError
	if !errors.As(err, &structure) {
		t.Fatalf("expected StructureError, got %v", err)
	}

	items, _ := svc.List(ctx)
	if len(items) != 0 {
		t.Fatalf("rejected uploads must not be stored, got %d", len(items))
	}
}

func TestPublishIsExclusive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Active(ctx); !errors.Is(err, questionset.ErrNoActiveVersion) {
		t.Fatalf("expected no active version, got %v", err)
	}

	for _, name := range []string{"IRAS_v1.xlsx", "IRAS_v2.xlsx"} {
		if _, err := svc.Import(ctx, name, bytes.NewReader(sampleWorkbook(t))); err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
	}

	if _, err := svc.Publish(ctx, "IRAS_v1"); err != nil {
		t.Fatalf("publish v1: %v", err)
	}
	sum, err := svc.Publish(ctx, "IRAS_v2")
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if !sum.IsPublished || sum.IsDraft {
		t.Fatalf("published version should not be a draft: %+v", sum)
	}

	active, err := svc.Active(ctx)
	if err != nil || active.Version.VersionID != "IRAS_v2" {
		t.Fatalf("expected IRAS_v2 active, got %+v err=%v", active.Version, err)
	}

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	published := 0
	for _, it := range items {
		if it.IsPublished {
			published++
		}
	}
	if len(items) != 2 || published != 1 {
		t.Fatalf("expected exactly one published of two, got %+v", items)
	}
	if items[0].VersionID != "IRAS_v2" {
		t.Fatalf("list should be newest first, got %s", items[0].VersionID)
	}

	sum, err = svc.Unpublish(ctx, "IRAS_v2")
	if err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if sum.IsPublished || sum.IsDraft {
		t.Fatalf("unexpected flags after unpublish: %+v", sum)
	}
	if _, err := svc.Active(ctx); !errors.Is(err, questionset.ErrNoActiveVersion) {
		t.Fatalf("expected no active version after unpublish, got %v", err)
	}
}

func TestListOrdersSubSecondTimestamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stamps := []time.Time{
		time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC),
		time.Date(2026, 3, 1, 9, 0, 5, 500_000_000, time.UTC),
	}
	for i, name := range []string{"IRAS_v1.xlsx", "IRAS_v2.xlsx"} {
		stamp := stamps[i]
		svc.now = func() time.Time { return stamp }
		if _, err := svc.Import(ctx, name, bytes.NewReader(sampleWorkbook(t))); err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
	}

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].VersionID != "IRAS_v2" || items[1].VersionID != "IRAS_v1" {
		t.Fatalf("expected IRAS_v2 before IRAS_v1, got %+v", items)
	}
	if !items[0].CreatedAt.Equal(stamps[1]) || !items[1].CreatedAt.Equal(stamps[0]) {
		t.Fatalf("created_at did not round-trip: %v %v", items[0].CreatedAt, items[1].CreatedAt)
	}
}

func TestUnknownVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, questionset.ErrVersionNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := svc.Publish(ctx, "nope"); !errors.Is(err, questionset.ErrVersionNotFound) {
		t.Fatalf("publish: expected not found, got %v", err)
	}
	if _, err := svc.Unpublish(ctx, "nope"); !errors.Is(err, questionset.ErrVersionNotFound) {
		t.Fatalf("unpublish: expected not found, got %v", err)
	}
}

func TestService_PostgresIntegration(t *testing.T) {
	if os.Getenv("GOVPORTAL_INTEGRATION") != "1" {
		t.Skip("set GOVPORTAL_INTEGRATION=1 to run integration tests")
	}
	dsn := os.Getenv("GOVPORTAL_TEST_DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("GOVPORTAL_TEST_DB_DSN is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	conn, err := db.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	svc, err := NewService(ctx, conn, db.DialectPostgres)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	name := "itest_" + time.Now().UTC().Format("20060102150405") + ".xlsx"
	rep, err := svc.Import(ctx, name, bytes.NewReader(sampleWorkbook(t)))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `DELETE FROM question_set_versions WHERE version_id = $1`, rep.VersionID)
	}()

	if _, err := svc.Publish(ctx, rep.VersionID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	active, err := svc.Active(ctx)
	if err != nil || active.Version.VersionID != rep.VersionID {
		t.Fatalf("active got %+v err=%v", active.Version, err)
	}
}
