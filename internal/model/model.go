package model

import (
	"encoding/json"
	"time"
)

// AnalysisStatus is the lifecycle state of an analysis.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusRunning   AnalysisStatus = "running"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
	StatusCancelled AnalysisStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Analysis is one submitted project and, once finished, its outcome.
type Analysis struct {
	ID         string          `json:"id"`
	AnalystID  string          `json:"analyst_id"`
	Name       string          `json:"name"`
	Status     AnalysisStatus  `json:"status"`
	Project    json.RawMessage `json:"project"`
	Result     *Result         `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   *Progress       `json:"progress,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Progress is live sampling progress; it is never persisted.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Result is the recommendation of a completed analysis.
type Result struct {
	Mode         string  `json:"mode"`
	Rule         string  `json:"rule"`
	Alpha        float64 `json:"alpha,omitempty"`
	Seed         int64   `json:"seed"`
	Trials       int     `json:"trials"`
	Observations int     `json:"observations"`
	// Strategy-space sizes, 2^n - 1 per side, as decimal strings.
	DefenderSpace string `json:"defender_space"`
	AttackerSpace string `json:"attacker_space"`
	Techniques    int    `json:"techniques"`
	Mitigations   int    `json:"mitigations"`

	Recommended Recommendation     `json:"recommended"`
	Top         []Recommendation   `json:"top"`
	Convergence []ConvergencePoint `json:"convergence,omitempty"`
}

// Recommendation is one defender strategy and its criterion value.
type Recommendation struct {
	Arm      int       `json:"arm"`
	Value    float64   `json:"value"`
	Samples  int       `json:"samples"`
	Measures []Measure `json:"measures"`
}

// Measure is one mitigation in a recommended strategy.
type Measure struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	// Loss is the summed loss interval of the assets the measure protects.
	LossMin float64 `json:"loss_min"`
	LossMax float64 `json:"loss_max"`
}

// ConvergencePoint is the running mean after N observations.
type ConvergencePoint struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
}
