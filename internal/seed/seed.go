// Package seed loads the reference catalog from YAML and syncs coordinators
// from CSV. Every entry is matched by its natural key so loads are idempotent.
package seed

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
	"github.com/mind-engage/mindengage-mgd/internal/kpi"
)

//go:embed default.yaml
var defaultYAML []byte

var validate = validator.New()

type File struct {
	Periods      []PeriodSpec      `yaml:"periods"`
	Rubric       *RubricSpec       `yaml:"rubric"`
	Behaviors    []BehaviorSpec    `yaml:"behaviors"`
	Objectives   []ObjectiveSpec   `yaml:"objectives"`
	Coordinators []CoordinatorSpec `yaml:"coordinators"`
	KPIFunctions []FunctionSpec    `yaml:"kpi_functions"`
	KPIPeriods   []KPIPeriodSpec   `yaml:"kpi_periods"`
}

type PeriodSpec struct {
	Name string `yaml:"name"`
}

type RubricSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

type BehaviorSpec struct {
	Label         string `yaml:"label"`
	Description   string `yaml:"description"`
	ExpectedLevel string `yaml:"expected_level"`
	Weight        int    `yaml:"weight"`
}

type ObjectiveSpec struct {
	Axis          string `yaml:"axis"`
	Label         string `yaml:"label"`
	Indicator     string `yaml:"indicator"`
	ExpectedLevel string `yaml:"expected_level"`
	Weight        int    `yaml:"weight"`
}

type CoordinatorSpec struct {
	FullName string `yaml:"full_name" json:"full_name"`
	Email    string `yaml:"email" json:"email"`
	Campus   string `yaml:"campus" json:"campus"`
	Area     string `yaml:"area" json:"area"`
	Active   *bool  `yaml:"is_active" json:"is_active"`
}

type FunctionSpec struct {
	Code        string    `yaml:"code"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Weight      int       `yaml:"weight"`
	KPIs        []KPISpec `yaml:"kpis"`
}

type KPISpec struct {
	Name   string  `yaml:"name"`
	Target float64 `yaml:"target"`
	Weight int     `yaml:"weight"`
}

type KPIPeriodSpec struct {
	Year  int `yaml:"year"`
	Month int `yaml:"month"`
}

// Report counts what a load created. Existing catalog rows are left as they
// are; KPI functions and KPIs are updated in place.
type Report struct {
	Periods      int
	Rubrics      int
	Behaviors    int
	Objectives   int
	Coordinators int
	Functions    int
	KPIsCreated  int
	KPIsUpdated  int
	KPIPeriods   int
}

func (r Report) String() string {
	return fmt.Sprintf("periods=%d rubrics=%d behaviors=%d objectives=%d coordinators=%d "+
		"kpi_functions=%d kpis_created=%d kpis_updated=%d kpi_periods=%d",
		r.Periods, r.Rubrics, r.Behaviors, r.Objectives, r.Coordinators,
		r.Functions, r.KPIsCreated, r.KPIsUpdated, r.KPIPeriods)
}

// Parse decodes a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("seed: parse: %w", err)
	}
	return f, nil
}

// Default returns the embedded catalog.
func Default() (File, error) {
	return Parse(bytes.NewReader(defaultYAML))
}

// Load applies f in a single transaction.
func Load(ctx context.Context, dbh *sql.DB, f File) (Report, error) {
	var rep Report
	err := db.WithTx(ctx, dbh, func(tx *sql.Tx) error {
		rep = Report{}
		return apply(ctx, catalog.NewSQLStore(tx), kpi.NewSQLStore(tx), f, &rep)
	})
	return rep, err
}

func apply(ctx context.Context, cat catalog.Store, ks kpi.Store, f File, rep *Report) error {
	for _, p := range f.Periods {
		if err := ensurePeriod(ctx, cat, strings.TrimSpace(p.Name), rep); err != nil {
			return err
		}
	}

	var rubricID *int64
	if f.Rubric != nil {
		id, err := ensureRubric(ctx, cat, *f.Rubric, rep)
		if err != nil {
			return err
		}
		rubricID = &id
	}

	behaviors, err := cat.ListBehaviors(ctx, catalog.ListOpts{})
	if err != nil {
		return err
	}
	for _, spec := range f.Behaviors {
		b := catalog.Behavior{
			Label:         strings.TrimSpace(spec.Label),
			Description:   spec.Description,
			ExpectedLevel: spec.ExpectedLevel,
			Weight:        spec.Weight,
			RubricID:      rubricID,
		}
		if slices.ContainsFunc(behaviors, func(x catalog.Behavior) bool { return x.Label == b.Label }) {
			continue
		}
		if err := validate.Struct(b); err != nil {
			return fmt.Errorf("seed: behavior %q: %w", b.Label, err)
		}
		created, err := cat.CreateBehavior(ctx, b)
		if err != nil {
			return err
		}
		behaviors = append(behaviors, created)
		rep.Behaviors++
	}

	objectives, err := cat.ListObjectives(ctx, catalog.ListOpts{})
	if err != nil {
		return err
	}
	for _, spec := range f.Objectives {
		o := catalog.Objective{
			Axis:          strings.TrimSpace(spec.Axis),
			Label:         strings.TrimSpace(spec.Label),
			Indicator:     spec.Indicator,
			ExpectedLevel: spec.ExpectedLevel,
			Weight:        spec.Weight,
			RubricID:      rubricID,
		}
		if slices.ContainsFunc(objectives, func(x catalog.Objective) bool { return x.Axis == o.Axis && x.Label == o.Label }) {
			continue
		}
		if err := validate.Struct(o); err != nil {
			return fmt.Errorf("seed: objective %q: %w", o.Label, err)
		}
		created, err := cat.CreateObjective(ctx, o)
		if err != nil {
			return err
		}
		objectives = append(objectives, created)
		rep.Objectives++
	}

	for _, spec := range f.Coordinators {
		if err := ensureCoordinator(ctx, cat, spec, rep); err != nil {
			return err
		}
	}

	return applyKPI(ctx, ks, f, rep)
}

func applyKPI(ctx context.Context, ks kpi.Store, f File, rep *Report) error {
	for _, spec := range f.KPIFunctions {
		fn := kpi.Function{
			Code:        strings.TrimSpace(spec.Code),
			Name:        spec.Name,
			Description: spec.Description,
			Weight:      spec.Weight,
		}
		if err := validate.Struct(fn); err != nil {
			return fmt.Errorf("seed: kpi function %q: %w", fn.Code, err)
		}
		fn, created, err := ks.UpsertFunction(ctx, fn)
		if err != nil {
			return err
		}
		if created {
			rep.Functions++
		}
		for _, ksp := range spec.KPIs {
			k := kpi.KPI{FunctionID: fn.ID, Name: strings.TrimSpace(ksp.Name), Target: ksp.Target, Weight: ksp.Weight}
			if err := validate.Struct(k); err != nil {
				return fmt.Errorf("seed: kpi %q: %w", k.Name, err)
			}
			_, created, err := ks.UpsertKPI(ctx, k)
			if err != nil {
				return err
			}
			if created {
				rep.KPIsCreated++
			} else {
				rep.KPIsUpdated++
			}
		}
	}

	if len(f.KPIPeriods) == 0 {
		return nil
	}
	existing, err := ks.ListPeriods(ctx)
	if err != nil {
		return err
	}
	for _, spec := range f.KPIPeriods {
		p := kpi.Period{Year: spec.Year, Month: spec.Month}
		if slices.ContainsFunc(existing, func(x kpi.Period) bool { return x.Year == p.Year && x.Month == p.Month }) {
			continue
		}
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("seed: kpi period %s: %w", p.Label(), err)
		}
		created, err := ks.CreatePeriod(ctx, p)
		if err != nil {
			return err
		}
		existing = append(existing, created)
		rep.KPIPeriods++
	}
	return nil
}

func ensurePeriod(ctx context.Context, cat catalog.Store, name string, rep *Report) error {
	ps, err := cat.ListPeriods(ctx, catalog.ListOpts{Q: name})
	if err != nil {
		return err
	}
	if slices.ContainsFunc(ps, func(p catalog.Period) bool { return p.Name == name }) {
		return nil
	}
	p := catalog.Period{Name: name}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("seed: period %q: %w", name, err)
	}
	if _, err := cat.CreatePeriod(ctx, p); err != nil {
		return err
	}
	rep.Periods++
	return nil
}

func ensureRubric(ctx context.Context, cat catalog.Store, spec RubricSpec, rep *Report) (int64, error) {
	name := strings.TrimSpace(spec.Name)
	rs, err := cat.ListRubrics(ctx, catalog.ListOpts{Q: name})
	if err != nil {
		return 0, err
	}
	for _, r := range rs {
		if r.Name == name {
			return r.ID, nil
		}
	}
	r := catalog.Rubric{Name: name, Description: spec.Description, URL: spec.URL}
	if err := validate.Struct(r); err != nil {
		return 0, fmt.Errorf("seed: rubric %q: %w", name, err)
	}
	created, err := cat.CreateRubric(ctx, r)
	if err != nil {
		return 0, err
	}
	rep.Rubrics++
	return created.ID, nil
}

func ensureCoordinator(ctx context.Context, cat catalog.Store, spec CoordinatorSpec, rep *Report) error {
	c := spec.coordinator()
	cs, err := cat.ListCoordinators(ctx, catalog.ListOpts{Q: c.FullName})
	if err != nil {
		return err
	}
	if slices.ContainsFunc(cs, func(x catalog.Coordinator) bool { return x.FullName == c.FullName }) {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("seed: coordinator %q: %w", c.FullName, err)
	}
	if _, err := cat.CreateCoordinator(ctx, c); err != nil {
		return err
	}
	rep.Coordinators++
	return nil
}

func (s CoordinatorSpec) coordinator() catalog.Coordinator {
	c := catalog.Coordinator{
		FullName: strings.TrimSpace(s.FullName),
		Email:    strings.TrimSpace(s.Email),
		Campus:   strings.TrimSpace(s.Campus),
		Area:     strings.TrimSpace(s.Area),
		Active:   true,
	}
	if s.Active != nil {
		c.Active = *s.Active
	}
	if c.Campus == "" {
		c.Campus = defaultCampus
	}
	return c
}

const defaultCampus = "Arica"
