package kpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
)

const maxEvidenceBytes = 10 << 20

var validate = validator.New()

// Routes exposes the KPI scorecards as JSON. Mount under /api/kpi.
func Routes(svc *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/functions", listFunctions(svc))

	r.Get("/periods", listPeriods(svc))
	r.Post("/periods", createPeriod(svc))
	r.Post("/periods/{id}/close", closePeriod(svc))

	r.Post("/evaluations", openEvaluation(svc))
	r.Get("/evaluations/{id}", getScorecard(svc))
	r.Put("/evaluations/{id}/results/{kpiID}", putResult(svc))

	r.Get("/results/{id}/evidence", listEvidence(svc))
	r.Post("/results/{id}/evidence", addEvidence(svc))
	r.Get("/evidence/{id}/file", evidenceFile(svc))
	return r
}

/* ------------------------------ Catalog --------------------------------- */

func listFunctions(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fns, err := svc.Store.ListFunctions(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": fns})
	}
}

/* ------------------------------- Periods -------------------------------- */

func listPeriods(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.Store.ListPeriods(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		type item struct {
			Period
			Label string `json:"label"`
		}
		out := make([]item, 0, len(ps))
		for _, p := range ps {
			out = append(out, item{Period: p, Label: p.Label()})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

func createPeriod(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Period
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(p); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		p.Closed = false
		created, err := svc.Store.CreatePeriod(r.Context(), p)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func closePeriod(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := svc.ClosePeriod(r.Context(), id); err != nil {
			writeServiceErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

/* ----------------------------- Evaluations ------------------------------ */

type openRequest struct {
	CoordinatorID int64 `json:"coordinator_id" validate:"required,gt=0"`
	PeriodID      int64 `json:"period_id" validate:"required,gt=0"`
}

func openEvaluation(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		ev, created, err := svc.OpenEvaluation(r.Context(), req.CoordinatorID, req.PeriodID)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, ev)
	}
}

func getScorecard(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		sc, err := svc.Scorecard(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	}
}

type resultRequest struct {
	Value *float64 `json:"value" validate:"required"`
}

func putResult(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		kpiID, ok := pathID(w, r, "kpiID")
		if !ok {
			return
		}
		var req resultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		res, ev, err := svc.RecordResult(r.Context(), id, kpiID, *req.Value)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":      res,
			"total_score": ev.TotalScore,
		})
	}
}

/* ------------------------------- Evidence ------------------------------- */

type evidenceForm struct {
	Description string `validate:"required,max=200"`
}

func listEvidence(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		items, err := svc.ListEvidence(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// addEvidence takes a multipart form with a description and an optional "file".
func addEvidence(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes)
		if err := r.ParseMultipartForm(maxEvidenceBytes); err != nil {
			writeErr(w, http.StatusBadRequest, "multipart form required (max 10MB)")
			return
		}
		form := evidenceForm{Description: strings.TrimSpace(r.FormValue("description"))}
		if err := validate.Struct(form); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		var (
			file     io.Reader
			filename string
		)
		f, hdr, err := r.FormFile("file")
		switch {
		case err == nil:
			defer f.Close()
			file, filename = f, hdr.Filename
		case errors.Is(err, http.ErrMissingFile):
		default:
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}

		e, err := svc.AddEvidence(r.Context(), id, form.Description, filename, file)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func evidenceFile(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		rc, e, err := svc.EvidenceFile(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(e.BlobKey))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, path.Base(e.BlobKey)))
		_, _ = io.Copy(w, rc)
	}
}

/* ------------------------------- Helpers -------------------------------- */

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPeriodClosed):
		writeErr(w, http.StatusConflict, err.Error())
	case isUniqueViolation(err):
		writeErr(w, http.StatusConflict, "already exists")
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
