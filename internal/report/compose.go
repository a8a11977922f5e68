// Package report composes the acta of an evaluation and renders it as HTML
// or PDF. Both renderers consume the same Acta value.
package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

// Options are the institutional texts printed on every acta.
type Options struct {
	Site         string
	Role         string
	Institution  string
	Title        string
	DirectorName string
	DirectorRole string
	DirectorUnit string
	SubjectRole  string
}

// Input is everything needed to compose one acta.
type Input struct {
	EvaluationID int64
	Coordinator  catalog.Coordinator
	Period       catalog.Period
	CreatedAt    time.Time
	Closed       bool
	Catalog      catalog.Snapshot
	Behaviors    map[int64]string
	Objectives   map[int64]string
	Strengths    string
	Improvements string
	Summary      string
	Feedback     string
	Result       scoring.Result
}

type Field struct {
	Label string
	Value string
}

type BehaviorRow struct {
	Label      string
	Weight     string
	Compliance string
}

type ObjectiveRow struct {
	Axis       string
	Label      string
	Indicator  string
	Weight     string
	Compliance string
}

type Signature struct {
	Name  string
	Lines []string
}

type Acta struct {
	Number      string
	Institution string
	Title       string
	Closed      bool
	Level       scoring.Level
	Meta        []Field
	Behaviors   []BehaviorRow
	Objectives  []ObjectiveRow
	Comments    []Field
	Signatures  [2]Signature
}

// Filename is the download name of the PDF form.
func (a Acta) Filename() string { return "acta_" + a.Number + ".pdf" }

var yearRe = regexp.MustCompile(`20\d{2}`)

// DocumentNumber builds ACTA-<SITE>-<ROLE>-<YEAR>-<ID>. The year is the first
// 20xx token of the period name, else the year of now.
func DocumentNumber(site, role, periodName string, id int64, now time.Time) string {
	year := yearRe.FindString(periodName)
	if year == "" {
		year = strconv.Itoa(now.Year())
	}
	return fmt.Sprintf("ACTA-%s-%s-%s-%04d", strings.ToUpper(site), strings.ToUpper(role), year, id)
}

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"
)

// Compose lays out the acta. now is the signing date.
func Compose(in Input, opts Options, now time.Time) Acta {
	res := in.Result
	a := Acta{
		Number:      DocumentNumber(opts.Site, opts.Role, in.Period.Name, in.EvaluationID, now),
		Institution: opts.Institution,
		Title:       opts.Title,
		Closed:      in.Closed,
		Level:       res.Level,
	}
	a.Meta = []Field{
		{"Document no.", a.Number},
		{"Signed on", now.Format(dateLayout)},
		{"Coordinator", in.Coordinator.FullName},
		{"Period", in.Period.Name},
		{"Created", in.CreatedAt.Format(dateTimeLayout)},
		{"Behavior average", res.BehaviorAvg.Format(2)},
		{"Objective average", res.ObjectiveAvg.Format(2)},
		{"Score (1-5)", res.Score.Format(2)},
		{"Equivalent (0-120)", res.Equivalent.Format(1)},
		{"Performance level", res.Level.String()},
	}

	for _, b := range in.Catalog.Behaviors {
		a.Behaviors = append(a.Behaviors, BehaviorRow{
			Label:      b.Label,
			Weight:     weight(b.Weight),
			Compliance: cell(in.Behaviors, b.ID),
		})
	}
	for _, o := range in.Catalog.Objectives {
		a.Objectives = append(a.Objectives, ObjectiveRow{
			Axis:       orPlaceholder(o.Axis),
			Label:      o.Label,
			Indicator:  orPlaceholder(o.Indicator),
			Weight:     weight(o.Weight),
			Compliance: cell(in.Objectives, o.ID),
		})
	}

	a.Comments = []Field{
		{"Strengths", orPlaceholder(in.Strengths)},
		{"Areas for improvement", orPlaceholder(in.Improvements)},
		{"Summary", orPlaceholder(in.Summary)},
		{"Feedback", orPlaceholder(in.Feedback)},
	}

	a.Signatures = [2]Signature{
		{Name: opts.DirectorName, Lines: nonEmpty(opts.DirectorRole, opts.DirectorUnit)},
		{Name: in.Coordinator.FullName, Lines: nonEmpty(opts.SubjectRole)},
	}
	return a
}

func weight(w int) string { return strconv.Itoa(w) + "%" }

func cell(values map[int64]string, id int64) string {
	return orPlaceholder(values[id])
}

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return scoring.Placeholder
	}
	return s
}

func nonEmpty(ss ...string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
