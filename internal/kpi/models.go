// Package kpi implements the monthly KPI evaluation of coordinators: weighted
// functions and indicators, per-month results, a weighted total and evidence
// files.
package kpi

import (
	"fmt"
	"time"
)

type Function struct {
	ID          int64  `json:"id"`
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Weight      int    `json:"weight" validate:"gte=1,lte=100"`
	KPIs        []KPI  `json:"kpis,omitempty" validate:"dive"`
}

type KPI struct {
	ID         int64   `json:"id"`
	FunctionID int64   `json:"function_id"`
	Name       string  `json:"name" validate:"required,max=200"`
	Target     float64 `json:"target"`
	Weight     int     `json:"weight" validate:"gte=1,lte=100"`
}

type Period struct {
	ID     int64 `json:"id"`
	Year   int   `json:"year" validate:"gte=2000,lte=2100"`
	Month  int   `json:"month" validate:"gte=1,lte=12"`
	Closed bool  `json:"closed"`
}

// Label renders the period as MM-YYYY.
func (p Period) Label() string { return fmt.Sprintf("%02d-%d", p.Month, p.Year) }

type Evaluation struct {
	ID            int64     `json:"id"`
	CoordinatorID int64     `json:"coordinator_id"`
	PeriodID      int64     `json:"period_id"`
	CreatedAt     time.Time `json:"created_at"`
	TotalScore    float64   `json:"total_score"`
}

type Result struct {
	ID           int64   `json:"id"`
	EvaluationID int64   `json:"evaluation_id"`
	KPIID        int64   `json:"kpi_id"`
	Value        float64 `json:"value"`
	Score        float64 `json:"score"`

	// Denormalized from the KPI for display and weighting.
	KPIName string  `json:"kpi_name,omitempty"`
	Target  float64 `json:"target"`
	Weight  int     `json:"weight"`
}

type Evidence struct {
	ID          int64     `json:"id"`
	ResultID    int64     `json:"result_id"`
	Description string    `json:"description" validate:"required,max=200"`
	BlobKey     string    `json:"blob_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
