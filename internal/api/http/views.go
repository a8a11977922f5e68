package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/evaluation"
	"github.com/mind-engage/mindengage-mgd/internal/observability"
	"github.com/mind-engage/mindengage-mgd/internal/report"
	"github.com/mind-engage/mindengage-mgd/internal/web"
)

const (
	msgSaved  = "Changes saved."
	msgClosed = "Evaluation closed. It can no longer be edited."
	msgLocked = "This evaluation is closed and can no longer be edited."
)

// Views bundles what the HTML handlers share.
type Views struct {
	Svc     *evaluation.Service
	Pages   *web.Renderer
	Metrics *observability.Metrics
	Log     *zap.Logger
}

// MountViews registers the evaluator-facing pages.
func MountViews(r chi.Router, v *Views) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard/", http.StatusFound)
	})
	r.Get("/dashboard/", DashboardHandler(v))
	r.Get("/crear-evaluacion/{coordinatorID}/{periodID}/", CreateEvaluationHandler(v))
	r.Post("/crear-evaluacion/{coordinatorID}/{periodID}/", CreateEvaluationHandler(v))
	r.Get("/evaluacion/{id}/", EvaluationFormHandler(v))
	r.Post("/evaluacion/{id}/", EvaluationSubmitHandler(v))
	r.Get("/acta/{id}/", ActaHandler(v))
}

// GET /dashboard/?period=<id>
func DashboardHandler(v *Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var periodID int64
		if raw := r.URL.Query().Get("period"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				v.Pages.Error(w, http.StatusNotFound, "period not found")
				return
			}
			periodID = id
		}
		d, err := v.Svc.Dashboard(r.Context(), periodID)
		if err != nil {
			v.fail(w, r, err)
			return
		}
		v.render(w, r, "dashboard.html", web.Page{Title: "Dashboard", Flash: web.PopFlash(w, r), Body: d})
	}
}

// GET|POST /crear-evaluacion/<coordinator>/<period>/
func CreateEvaluationHandler(v *Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coordinatorID, ok1 := parseID(chi.URLParam(r, "coordinatorID"))
		periodID, ok2 := parseID(chi.URLParam(r, "periodID"))
		if !ok1 || !ok2 {
			v.Pages.Error(w, http.StatusNotFound, "coordinator or period not found")
			return
		}
		ev, err := v.Svc.Open(r.Context(), coordinatorID, periodID)
		if err != nil {
			v.fail(w, r, err)
			return
		}
		http.Redirect(w, r, evaluationPath(ev.ID), http.StatusSeeOther)
	}
}

// GET /evaluacion/<id>/
func EvaluationFormHandler(v *Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(chi.URLParam(r, "id"))
		if !ok {
			v.Pages.Error(w, http.StatusNotFound, "evaluation not found")
			return
		}
		d, err := v.Svc.Detail(r.Context(), id)
		if err != nil {
			v.fail(w, r, err)
			return
		}
		v.render(w, r, "evaluation.html", web.Page{
			Title: d.Coordinator.FullName,
			Flash: web.PopFlash(w, r),
			Body:  d,
		})
	}
}

// POST /evaluacion/<id>/
//
// Fields: b_<behaviorID>, o_<objectiveID>, strengths, improvements, summary,
// feedback and action=save|close.
func EvaluationSubmitHandler(v *Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(chi.URLParam(r, "id"))
		if !ok {
			v.Pages.Error(w, http.StatusNotFound, "evaluation not found")
			return
		}
		if err := r.ParseForm(); err != nil {
			v.Pages.Error(w, http.StatusBadRequest, "invalid form")
			return
		}
		out, err := v.Svc.Save(r.Context(), id, submissionFromForm(r))
		switch {
		case errors.Is(err, evaluation.ErrClosed):
			web.SetFlash(w, web.FlashWarning, msgLocked)
		case err != nil:
			v.fail(w, r, err)
			return
		case out.Closed:
			web.SetFlash(w, web.FlashSuccess, msgClosed)
		default:
			web.SetFlash(w, web.FlashSuccess, msgSaved)
		}
		http.Redirect(w, r, evaluationPath(id), http.StatusSeeOther)
	}
}

// GET /acta/<id>/[?format=pdf]
func ActaHandler(v *Views) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(chi.URLParam(r, "id"))
		if !ok {
			v.Pages.Error(w, http.StatusNotFound, "evaluation not found")
			return
		}
		a, err := v.Svc.Acta(r.Context(), id)
		if err != nil {
			v.fail(w, r, err)
			return
		}

		var buf bytes.Buffer
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "pdf" {
			if err := report.WritePDF(&buf, a); err != nil {
				v.fail(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, a.Filename()))
		} else {
			format = "html"
			if err := report.WriteHTML(&buf, a); err != nil {
				v.fail(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		v.Metrics.ActaRendered(format)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = buf.WriteTo(w)
	}
}

func submissionFromForm(r *http.Request) evaluation.Submission {
	sub := evaluation.Submission{
		Behaviors:  map[int64]string{},
		Objectives: map[int64]string{},
		Comments: evaluation.Comments{
			Strengths:    r.PostForm.Get("strengths"),
			Improvements: r.PostForm.Get("improvements"),
			Summary:      r.PostForm.Get("summary"),
			Feedback:     r.PostForm.Get("feedback"),
		},
	}
	switch r.PostForm.Get("action") {
	case "close", "cerrar":
		sub.Close = true
	}
	for key := range r.PostForm {
		var target map[int64]string
		switch {
		case strings.HasPrefix(key, "b_"):
			target = sub.Behaviors
		case strings.HasPrefix(key, "o_"):
			target = sub.Objectives
		default:
			continue
		}
		if id, ok := parseID(key[2:]); ok {
			target[id] = r.PostForm.Get(key)
		}
	}
	return sub
}

func (v *Views) render(w http.ResponseWriter, r *http.Request, page string, p web.Page) {
	if err := v.Pages.Render(w, http.StatusOK, page, p); err != nil {
		v.fail(w, r, err)
	}
}

// fail maps lookup misses to 404 and logs everything else as a 500.
func (v *Views) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, evaluation.ErrNotFound) || errors.Is(err, catalog.ErrNotFound) {
		v.Pages.Error(w, http.StatusNotFound, "not found")
		return
	}
	if v.Log != nil {
		v.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	v.Pages.Error(w, http.StatusInternalServerError, "internal error")
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func evaluationPath(id int64) string {
	return "/evaluacion/" + strconv.FormatInt(id, 10) + "/"
}
