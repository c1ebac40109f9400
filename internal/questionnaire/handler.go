package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"govportal/internal/app/apiresp"
	"govportal/internal/navigation"
	"govportal/internal/questionset"
	"govportal/internal/rules"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionnaireService
}

type questionnaireService interface {
	Render(ctx context.Context, in RenderInput) (*Page, error)
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	Navigation(ctx context.Context, versionID, sectionID string) (navigation.Navigation, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitRequest struct {
	ProjectionID string                        `json:"projection_id"`
	Answers      map[string]json.RawMessage    `json:"answers"`
	PriorAnswers map[string]rules.AnswerRecord `json:"prior_answers"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RenderSection(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Render(r.Context(), RenderInput{
		VersionID: r.URL.Query().Get("version"),
		SectionID: sectionParam(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: page})
}

func (h *Handler) SubmitSection(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	answers := make(map[int]json.RawMessage, len(req.Answers))
	for key, raw := range req.Answers {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "answer keys must be question indices"})
			return
		}
		answers[idx] = raw
	}

	res, err := h.svc.Submit(r.Context(), SubmitInput{
		ProjectionID: req.ProjectionID,
		SectionID:    sectionParam(r),
		Answers:      answers,
		PriorAnswers: req.PriorAnswers,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: res})
}

func (h *Handler) SectionNavigation(w http.ResponseWriter, r *http.Request) {
	nav, err := h.svc.Navigation(r.Context(), r.URL.Query().Get("version"), sectionParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: nav})
}

func sectionParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "sectionID"))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var idxErr *IndexOutOfRangeError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.As(err, &idxErr):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrProjectionNotFound):
		writeJSON(w, r, http.StatusGone, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, navigation.ErrUnknownSection),
		errors.Is(err, questionset.ErrVersionNotFound),
		errors.Is(err, questionset.ErrNoActiveVersion):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
