// Package admin exposes the JSON API used to maintain the catalog and to
// inspect evaluations, their audit trail and archived actas.
//
// Route prefix: /admin. Authentication and RBAC are applied by the caller.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/evaluation"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

var validate = validator.New()

// EventLister is the read side of the audit trail.
type EventLister interface {
	List(ctx context.Context, key string, limit int) ([]syncx.Event, error)
}

type Deps struct {
	Catalog     catalog.Store
	Evaluations evaluation.Store
	Events      EventLister
	Blobs       storage.BlobStore
}

// Routes returns the admin handler. Mount it with r.Mount("/admin", admin.Routes(deps)).
func Routes(d Deps) http.Handler {
	r := chi.NewRouter()
	cat := d.Catalog

	mount(r, "/coordinators", resource[catalog.Coordinator]{
		name:   "coordinator",
		create: cat.CreateCoordinator,
		get:    cat.GetCoordinator,
		list:   cat.ListCoordinators,
		update: cat.UpdateCoordinator,
		del:    cat.DeleteCoordinator,
		prepare: func(c *catalog.Coordinator, id int64) {
			c.ID = id
			c.FullName = strings.TrimSpace(c.FullName)
			c.Email = strings.TrimSpace(c.Email)
			c.Campus = strings.TrimSpace(c.Campus)
			c.Area = strings.TrimSpace(c.Area)
		},
	})
	mount(r, "/periods", resource[catalog.Period]{
		name:   "period",
		create: cat.CreatePeriod,
		get:    cat.GetPeriod,
		list:   cat.ListPeriods,
		update: cat.UpdatePeriod,
		del:    cat.DeletePeriod,
		prepare: func(p *catalog.Period, id int64) {
			p.ID = id
			p.Name = strings.TrimSpace(p.Name)
		},
	})
	mount(r, "/rubrics", resource[catalog.Rubric]{
		name:   "rubric",
		create: cat.CreateRubric,
		get:    cat.GetRubric,
		list:   cat.ListRubrics,
		update: cat.UpdateRubric,
		del:    cat.DeleteRubric,
		prepare: func(x *catalog.Rubric, id int64) {
			x.ID = id
			x.Name = strings.TrimSpace(x.Name)
			x.URL = strings.TrimSpace(x.URL)
		},
	})
	mount(r, "/behaviors", resource[catalog.Behavior]{
		name:   "behavior",
		create: cat.CreateBehavior,
		get:    cat.GetBehavior,
		list:   cat.ListBehaviors,
		update: cat.UpdateBehavior,
		del:    cat.DeleteBehavior,
		prepare: func(b *catalog.Behavior, id int64) {
			b.ID = id
			b.Label = strings.TrimSpace(b.Label)
		},
	})
	mount(r, "/objectives", resource[catalog.Objective]{
		name:   "objective",
		create: cat.CreateObjective,
		get:    cat.GetObjective,
		list:   cat.ListObjectives,
		update: cat.UpdateObjective,
		del:    cat.DeleteObjective,
		prepare: func(o *catalog.Objective, id int64) {
			o.ID = id
			o.Axis = strings.TrimSpace(o.Axis)
			o.Label = strings.TrimSpace(o.Label)
		},
	})

	r.Get("/weights", weightTotals(cat))
	if d.Evaluations != nil {
		r.Get("/evaluations", listEvaluations(d.Evaluations))
	}
	if d.Events != nil {
		r.Get("/events", listEvents(d.Events))
	}
	if d.Blobs != nil {
		r.Get("/actas/{docID}.pdf", getActa(d.Blobs))
	}
	return r
}

/* ------------------------------ Resources --------------------------------- */

// resource wires one catalog entity to the five CRUD endpoints.
type resource[T any] struct {
	name    string
	create  func(context.Context, T) (T, error)
	get     func(context.Context, int64) (T, error)
	list    func(context.Context, catalog.ListOpts) ([]T, error)
	update  func(context.Context, T) error
	del     func(context.Context, int64) error
	prepare func(*T, int64) // sets the id and trims text fields
}

func mount[T any](r chi.Router, path string, res resource[T]) {
	r.Route(path, func(rr chi.Router) {
		rr.Post("/", createItem(res))
		rr.Get("/", listItems(res))
		rr.Get("/{id}", getItem(res))
		rr.Put("/{id}", updateItem(res))
		rr.Delete("/{id}", deleteItem(res))
	})
}

func createItem[T any](res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item T
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		res.prepare(&item, 0)
		if err := validate.Struct(item); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		out, err := res.create(r.Context(), item)
		if err != nil {
			writeStoreErr(w, res.name, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func listItems[T any](res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := parsePage(r, 0, 100)
		items, err := res.list(r.Context(), catalog.ListOpts{
			Q:      r.URL.Query().Get("q"),
			Offset: offset,
			Limit:  limit,
		})
		if err != nil {
			writeStoreErr(w, res.name, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func getItem[T any](res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		item, err := res.get(r.Context(), id)
		if err != nil {
			writeStoreErr(w, res.name, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func updateItem[T any](res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var item T // full replacement
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		// id in path is canonical
		res.prepare(&item, id)
		if err := validate.Struct(item); err != nil {
			writeErr(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		if err := res.update(r.Context(), item); err != nil {
			writeStoreErr(w, res.name, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func deleteItem[T any](res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := res.del(r.Context(), id); err != nil {
			writeStoreErr(w, res.name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

/* ------------------------------ Read views -------------------------------- */

func weightTotals(cat catalog.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cat.Snapshot(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		b, o := snap.WeightTotals()
		writeJSON(w, http.StatusOK, map[string]any{
			"behaviors":  b,
			"objectives": o,
			"balanced":   b == 100 && o == 100,
		})
	}
}

func listEvaluations(store evaluation.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		periodID, err := strconv.ParseInt(r.URL.Query().Get("period"), 10, 64)
		if err != nil || periodID <= 0 {
			writeErr(w, http.StatusBadRequest, "period query parameter required")
			return
		}
		evs, err := store.ListByPeriod(r.Context(), periodID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		if evs == nil {
			evs = []evaluation.Evaluation{}
		}
		writeJSON(w, http.StatusOK, evs)
	}
}

func listEvents(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, limit := parsePage(r, 0, 200)
		items, err := events.List(r.Context(), r.URL.Query().Get("key"), limit)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		if items == nil {
			items = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func getActa(blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "docID")
		if docID == "" || strings.ContainsAny(docID, `/\`) {
			writeErr(w, http.StatusBadRequest, "invalid document id")
			return
		}
		rc, err := blobs.Get(storage.ActaKey(docID))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "acta not archived")
				return
			}
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="acta_%s.pdf"`, docID))
		_, _ = io.Copy(w, rc)
	}
}

/* ------------------------------ Utilities --------------------------------- */

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func writeStoreErr(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeErr(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, catalog.ErrReferenced):
		writeErr(w, http.StatusConflict, what+" is referenced by evaluation responses")
	case isUniqueViolation(err):
		writeErr(w, http.StatusConflict, what+" already exists")
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
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

func parsePage(r *http.Request, defOffset, defLimit int) (offset, limit int) {
	q := r.URL.Query()
	offset = defOffset
	limit = defLimit

	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}
