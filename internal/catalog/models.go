// Package catalog holds the reference data evaluations are graded against:
// coordinators, periods, rubrics and their weighted behaviors and objectives.
package catalog

type Coordinator struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Campus   string `json:"campus" validate:"max=100"`
	Area     string `json:"area" validate:"max=200"`
	Active   bool   `json:"is_active"`
}

type Period struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required,max=200"`
}

// Rubric (pauta) is a versioned grading template.
type Rubric struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
}

// Behavior is an institution-wide weighted trait (conducta sello).
type Behavior struct {
	ID            int64  `json:"id"`
	Label         string `json:"label" validate:"required,max=250"`
	Description   string `json:"description"`
	ExpectedLevel string `json:"expected_level"`
	Weight        int    `json:"weight" validate:"gte=0,lte=100"`
	RubricID      *int64 `json:"rubric_id,omitempty"`
}

// Objective is a role-specific weighted goal tied to a strategic axis.
type Objective struct {
	ID            int64  `json:"id"`
	Axis          string `json:"axis" validate:"max=200"`
	Label         string `json:"label" validate:"required,max=250"`
	Indicator     string `json:"indicator"`
	ExpectedLevel string `json:"expected_level"`
	Weight        int    `json:"weight" validate:"gte=0,lte=100"`
	RubricID      *int64 `json:"rubric_id,omitempty"`
}

// Snapshot is the read-only view of the gradable items used by one request.
type Snapshot struct {
	Behaviors  []Behavior
	Objectives []Objective
}

// WeightTotals sums the weights per group. Both are expected to be 100 but
// nothing enforces it.
func (s Snapshot) WeightTotals() (behaviors, objectives int) {
	for _, b := range s.Behaviors {
		behaviors += b.Weight
	}
	for _, o := range s.Objectives {
		objectives += o.Weight
	}
	return
}

func (s Snapshot) HasBehavior(id int64) bool {
	for _, b := range s.Behaviors {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (s Snapshot) HasObjective(id int64) bool {
	for _, o := range s.Objectives {
		if o.ID == id {
			return true
		}
	}
	return false
}
