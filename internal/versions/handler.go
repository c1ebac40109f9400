package versions

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"govportal/internal/app/apiresp"
	"govportal/internal/questionset"
	"govportal/internal/workbook"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc      versionService
	maxBytes int64
}

type versionService interface {
	Import(ctx context.Context, fileName string, r io.Reader) (*ImportReport, error)
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, versionID string) (questionset.QuestionSet, error)
	Publish(ctx context.Context, versionID string) (*Summary, error)
	Unpublish(ctx context.Context, versionID string) (*Summary, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &Handler{svc: svc, maxBytes: int64(maxUploadMB) << 20}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, apiResponse{OK: false, Error: "upload too large"})
			return
		}
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	rep, err := h.svc.Import(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: rep})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	qs, err := h.svc.Get(r.Context(), versionParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: qs})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Publish(r.Context(), versionParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Unpublish(r.Context(), versionParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func versionParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "versionID"))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unsupported *workbook.UnsupportedFileError
		structure   *workbook.StructureError
		integrity   *questionset.IntegrityError
		incomplete  *questionset.IncompleteBuildError
	)
	switch {
	case errors.As(err, &unsupported),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidWorkbook),
		errors.Is(err, questionset.ErrInvalidVersionName):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.As(err, &structure), errors.As(err, &integrity), errors.As(err, &incomplete):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, questionset.ErrDuplicateVersion):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, questionset.ErrVersionNotFound):
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
