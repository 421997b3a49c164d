package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/freeeve/secgame/api/pkg/combin"
	"github.com/freeeve/secgame/api/pkg/game"
)

// ErrInvalidProject wraps every project decoding or validation failure.
var ErrInvalidProject = errors.New("invalid project")

var validate = validator.New()

// Project is the immutable description of one analysis: which part of the
// ATT&CK matrix the attacker plays, which assets the defender protects and
// how the game is sampled and decided.
type Project struct {
	Name    string `json:"name" yaml:"name" validate:"required,max=200"`
	Domain  string `json:"domain" yaml:"domain" validate:"required,oneof=enterprise-attack mobile-attack ics-attack"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Tactics are STIX ids, external ids (TA0002) or short names (execution).
	Tactics []string `json:"tactics" yaml:"tactics" validate:"required,min=1,dive,required"`
	// MaxLoss bounds every asset's loss interval. 0 means unbounded.
	MaxLoss    float64    `json:"max_loss,omitempty" yaml:"max_loss,omitempty" validate:"gte=0"`
	Assets     []Asset    `json:"assets" yaml:"assets" validate:"required,min=1,dive"`
	Simulation Simulation `json:"simulation" yaml:"simulation"`
	Criterion  Criterion  `json:"criterion" yaml:"criterion"`
}

// Asset is a defended resource with its deployment price, the interval of
// damage a successful attack causes, and the mitigations protecting it.
type Asset struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Price       float64  `json:"price" yaml:"price" validate:"gte=0"`
	Loss        Loss     `json:"loss" yaml:"loss"`
	Mitigations []string `json:"mitigations" yaml:"mitigations" validate:"required,min=1,dive,required"`
}

// Loss is a closed damage interval.
type Loss struct {
	Min float64 `json:"min" yaml:"min" validate:"gte=0,ltefield=Max"`
	Max float64 `json:"max" yaml:"max" validate:"gte=0"`
}

// Simulation selects the sampling policy.
type Simulation struct {
	Mode        string  `json:"mode" yaml:"mode" validate:"oneof=classic ucb"`
	Trials      int     `json:"trials" yaml:"trials" validate:"gt=0,lte=1000000"`
	Exploration float64 `json:"exploration" yaml:"exploration" validate:"gte=0"`
	Seed        int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Workers     int     `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`
}

// Criterion selects the decision rule.
type Criterion struct {
	Rule  string  `json:"rule" yaml:"rule" validate:"oneof=wald laplace bayes savage hurwicz optimism"`
	Alpha float64 `json:"alpha,omitempty" yaml:"alpha,omitempty" validate:"gte=0,lte=1"`
}

const (
	DefaultDomain = "enterprise-attack"
	DefaultTrials = 1000
	MaxTrials     = 1000000
)

// LoadProject reads a project file. ".json" files are decoded as JSON,
// everything else as YAML.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseProjectJSON(data)
	}
	return ParseProjectYAML(data)
}

// ParseProjectYAML decodes and validates a YAML project.
func ParseProjectYAML(data []byte) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	return &p, p.normalize()
}

// ParseProjectJSON decodes and validates a JSON project.
func ParseProjectJSON(data []byte) (*Project, error) {
	var p Project
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	return &p, p.normalize()
}

// normalize fills defaults and validates.
func (p *Project) normalize() error {
	if p.Domain == "" {
		p.Domain = DefaultDomain
	}
	if p.Simulation.Mode == "" {
		p.Simulation.Mode = "classic"
	}
	if p.Simulation.Trials == 0 {
		p.Simulation.Trials = DefaultTrials
	}
	if p.Criterion.Rule == "" {
		p.Criterion.Rule = "wald"
	}
	p.Criterion.Rule = strings.ToLower(p.Criterion.Rule)
	return p.Validate()
}

// Validate checks struct tags plus the constraints that span fields.
func (p *Project) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProject, formatValidationError(err))
	}
	if p.MaxLoss > 0 {
		for _, a := range p.Assets {
			if a.Loss.Max > p.MaxLoss {
				return fmt.Errorf("%w: asset %q loss %g exceeds max_loss %g", ErrInvalidProject, a.Name, a.Loss.Max, p.MaxLoss)
			}
		}
	}
	seen := make(map[string]bool, len(p.Assets))
	for _, a := range p.Assets {
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate asset %q", ErrInvalidProject, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// GameAssets converts the assets for the sampler.
func (p *Project) GameAssets() []game.Asset {
	out := make([]game.Asset, len(p.Assets))
	for i, a := range p.Assets {
		out[i] = game.Asset{
			Name:        a.Name,
			Price:       a.Price,
			Loss:        combin.Interval{Lo: a.Loss.Min, Hi: a.Loss.Max},
			Mitigations: a.Mitigations,
		}
	}
	return out
}

// formatValidationError reports the first failing field in a readable form.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min":
		return fmt.Errorf("%s: must have at least %s entries", field, e.Param())
	case "gt", "gte":
		return fmt.Errorf("%s: must be %s %s", field, map[string]string{"gt": ">", "gte": ">="}[e.Tag()], e.Param())
	case "lte":
		return fmt.Errorf("%s: must be <= %s", field, e.Param())
	case "ltefield":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %v", field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
