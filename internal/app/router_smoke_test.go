package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"govportal/internal/cache"
	"govportal/internal/db"
	"govportal/internal/questionnaire"
	"govportal/internal/versions"
	"govportal/internal/workbook"

	"golang.org/x/crypto/bcrypt"
)

const smokeAdminToken = "smoke-token"

func smokeRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	versionSvc, err := versions.NewService(ctx, conn, db.DialectSQLite)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(smokeAdminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	return NewRouter(Config{
		UploadRateLimitPerMin: 60,
		UploadMaxMB:           1,
		AdminTokenHash:        string(hash),
	}, conn, Services{
		Versions:      versionSvc,
		Questionnaire: questionnaire.NewService(versionSvc, cache.NewMemoryStore(), time.Minute),
	})
}

func smokeWorkbook(t *testing.T) []byte {
	t.Helper()
	row := func(id, section, seq, qType, conformance, answers string) []string {
		return []string{id, "Project", section, seq, "", id + " text", id, qType, "String", conformance, answers}
	}
	data, err := workbook.Encode(
		workbook.NewSheet(workbook.SheetContents, workbook.ContentsColumns, [][]string{{"Project", "Project"}}),
		workbook.NewSheet("Project", workbook.ModuleColumns, [][]string{
			row("IQ1", "S1", "1", "Radio button", "Mandatory", "OPT1,OPT2"),
			row("IQ2", "S1", "2", "Text", "Mandatory", ""),
			row("IQ3", "S2", "1", "Text", "Optional", ""),
		}),
		workbook.NewSheet(workbook.SheetRules, workbook.RulesColumns, [][]string{
			{"1", "IQ2", "1", "IQ1", "And", "", "And", "IN", "", "false", "OPT1", "", ""},
		}),
		workbook.NewSheet(workbook.SheetAnswerOptions, workbook.AnswerOptionsColumns, [][]string{
			{"OPT1", "Yes"}, {"OPT2", "No"},
		}),
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func do(t *testing.T, h http.Handler, req *http.Request, wantStatus int) map[string]json.RawMessage {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: got status %d, want %d: %s", req.Method, req.URL.Path, w.Code, wantStatus, w.Body.String())
	}
	var env map[string]json.RawMessage
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return env
}

func TestRouterSmokePublicRoutes(t *testing.T) {
	router := smokeRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "no_active_version", method: http.MethodGet, target: "/api/v1/questionnaire", wantStatus: http.StatusNotFound},
		{name: "unknown_version", method: http.MethodGet, target: "/api/v1/question-sets/nope", wantStatus: http.StatusNotFound},
		{name: "admin_requires_token", method: http.MethodGet, target: "/api/v1/admin/question-sets", wantStatus: http.StatusUnauthorized},
		{name: "submit_invalid_body", method: http.MethodPost, target: "/api/v1/questionnaire/sections/S1/submit", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterSmokeUploadPublishAnswer(t *testing.T) {
	router := smokeRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "IRAS_v1.xlsx")
	_, _ = fw.Write(smokeWorkbook(t))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/question-sets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(adminTokenHeader, smokeAdminToken)
	do(t, router, req, http.StatusCreated)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/question-sets/IRAS_v1/publish", nil)
	req.Header.Set("Authorization", "Bearer "+smokeAdminToken)
	do(t, router, req, http.StatusOK)

	env := do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/questionnaire", nil), http.StatusOK)
	var page questionnaire.Page
	if err := json.Unmarshal(env["data"], &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.SectionID != "S1" || len(page.Items) != 2 || page.Navigation.NextSectionID != "S2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	submit := `{"projection_id":"` + page.ProjectionID + `","answers":{"0":{"selected":"OPT1"}}}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit", bytes.NewBufferString(submit))
	env = do(t, router, req, http.StatusOK)
	var res questionnaire.SubmitResult
	if err := json.Unmarshal(env["data"], &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Complete || len(res.Issues) != 1 || res.Issues[0].QuestionID != "IQ2" {
		t.Fatalf("expected IQ2 to be required, got %+v", res)
	}

	submit = `{"projection_id":"` + page.ProjectionID + `","answers":{"0":{"selected":"OPT1"},"1":{"value":"because"}}}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit", bytes.NewBufferString(submit))
	env = do(t, router, req, http.StatusOK)
	res = questionnaire.SubmitResult{}
	_ = json.Unmarshal(env["data"], &res)
	if !res.Complete || res.Navigation.NextSectionID != "S2" {
		t.Fatalf("expected complete submission, got %+v", res)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit", bytes.NewBufferString(submit))
	do(t, router, req, http.StatusGone)
}
