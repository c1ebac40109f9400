package questionnaire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"govportal/internal/navigation"
	"govportal/internal/questionset"

	"github.com/go-chi/chi/v5"
)

type mockQuestionnaireService struct {
	renderFn     func(ctx context.Context, in RenderInput) (*Page, error)
	submitFn     func(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	navigationFn func(ctx context.Context, versionID, sectionID string) (navigation.Navigation, error)
}

func (m *mockQuestionnaireService) Render(ctx context.Context, in RenderInput) (*Page, error) {
	if m.renderFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.renderFn(ctx, in)
}

func (m *mockQuestionnaireService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, in)
}

func (m *mockQuestionnaireService) Navigation(ctx context.Context, versionID, sectionID string) (navigation.Navigation, error) {
	if m.navigationFn == nil {
		return navigation.Navigation{}, errors.New("not implemented")
	}
	return m.navigationFn(ctx, versionID, sectionID)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRenderSectionPassesVersionAndSection(t *testing.T) {
	var got RenderInput
	h := &Handler{svc: &mockQuestionnaireService{
		renderFn: func(ctx context.Context, in RenderInput) (*Page, error) {
			got = in
			return &Page{ProjectionID: "p1", VersionID: in.VersionID, SectionID: in.SectionID}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questionnaire/sections/S1?version=v2", nil)
	req = withParam(req, "sectionID", "S1")
	w := httptest.NewRecorder()

	h.RenderSection(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.VersionID != "v2" || got.SectionID != "S1" {
		t.Fatalf("unexpected render input: %+v", got)
	}
}

func TestRenderSectionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown section", &navigation.UnknownSectionError{VersionID: "v1", SectionID: "S9"}, http.StatusNotFound},
		{"unknown version", &questionset.UnknownVersionError{VersionID: "v9"}, http.StatusNotFound},
		{"no active version", questionset.ErrNoActiveVersion, http.StatusNotFound},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{svc: &mockQuestionnaireService{
				renderFn: func(ctx context.Context, in RenderInput) (*Page, error) { return nil, tc.err },
			}}
			req := httptest.NewRequest(http.MethodGet, "/api/v1/questionnaire/sections/S9", nil)
			req = withParam(req, "sectionID", "S9")
			w := httptest.NewRecorder()

			h.RenderSection(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestSubmitSectionParsesIndexedAnswers(t *testing.T) {
	var got SubmitInput
	h := &Handler{svc: &mockQuestionnaireService{
		submitFn: func(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
			got = in
			return &SubmitResult{Complete: true}, nil
		},
	}}

	body, _ := json.Marshal(map[string]interface{}{
		"projection_id": "p1",
		"answers": map[string]interface{}{
			"0": map[string]string{"selected": "OPT1"},
			"2": map[string]string{"value": "text"},
		},
		"prior_answers": map[string]interface{}{
			"IQ9": map[string]string{"value": "kept"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit", bytes.NewReader(body))
	req = withParam(req, "sectionID", "S1")
	w := httptest.NewRecorder()

	h.SubmitSection(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.ProjectionID != "p1" || got.SectionID != "S1" || len(got.Answers) != 2 {
		t.Fatalf("unexpected submit input: %+v", got)
	}
	if _, ok := got.Answers[2]; !ok {
		t.Fatalf("answer index 2 missing: %+v", got.Answers)
	}
	if got.PriorAnswers["IQ9"].Value != "kept" {
		t.Fatalf("prior answers not decoded: %+v", got.PriorAnswers)
	}
}

func TestSubmitSectionRejectsNonIndexKeys(t *testing.T) {
	h := &Handler{svc: &mockQuestionnaireService{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit",
		bytes.NewBufferString(`{"projection_id":"p1","answers":{"IQ1":"x"}}`))
	req = withParam(req, "sectionID", "S1")
	w := httptest.NewRecorder()

	h.SubmitSection(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitSectionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"expired", ErrProjectionNotFound, http.StatusGone},
		{"out of range", &IndexOutOfRangeError{Index: 5, Count: 3}, http.StatusBadRequest},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{svc: &mockQuestionnaireService{
				submitFn: func(ctx context.Context, in SubmitInput) (*SubmitResult, error) { return nil, tc.err },
			}}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire/sections/S1/submit",
				bytes.NewBufferString(`{"projection_id":"p1","answers":{}}`))
			req = withParam(req, "sectionID", "S1")
			w := httptest.NewRecorder()

			h.SubmitSection(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestSectionNavigationOK(t *testing.T) {
	h := &Handler{svc: &mockQuestionnaireService{
		navigationFn: func(ctx context.Context, versionID, sectionID string) (navigation.Navigation, error) {
			return navigation.Navigation{CurrentSectionID: sectionID, NextSectionID: "S3"}, nil
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/questionnaire/sections/S2/navigation", nil)
	req = withParam(req, "sectionID", "S2")
	w := httptest.NewRecorder()

	h.SectionNavigation(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		OK   bool                  `json:"ok"`
		Data navigation.Navigation `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.OK || env.Data.NextSectionID != "S3" || env.Data.CurrentSectionID != "S2" {
		t.Fatalf("unexpected body: %+v", env)
	}
}
