package models

import (
	"strings"
	"time"

	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
)

// Stage is one ordered bucket of a pipeline.
type Stage struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Pipeline is an ordered list of stages deals move through.
//
// Invariants:
//   - At least one stage
//   - Stage keys are non-empty and unique within the pipeline
//   - At most one default pipeline per company (enforced by the store)
type Pipeline struct {
	ID        id.PipelineID `json:"id"`
	CompanyID id.CompanyID  `json:"company_id"`
	Name      string        `json:"name"`
	Stages    []Stage       `json:"stages"`
	IsDefault bool          `json:"is_default"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DefaultStages seed the pipeline every new company starts with.
func DefaultStages() []Stage {
	return []Stage{
		{Key: "new", Name: "New"},
		{Key: "contacted", Name: "Contacted"},
		{Key: "proposal", Name: "Proposal"},
		{Key: "negotiation", Name: "Negotiation"},
	}
}

func NewPipeline(pipelineID id.PipelineID, companyID id.CompanyID, name string, stages []Stage, now time.Time) (*Pipeline, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pipeline name cannot be empty")
	}
	normalized, err := NormalizeStages(stages)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ID:        pipelineID,
		CompanyID: companyID,
		Name:      name,
		Stages:    normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeStages trims stage keys and names and enforces the stage invariants.
// A stage without a name is named after its key.
func NormalizeStages(stages []Stage) ([]Stage, error) {
	if len(stages) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pipeline needs at least one stage")
	}
	seen := make(map[string]struct{}, len(stages))
	out := make([]Stage, 0, len(stages))
	for _, st := range stages {
		key := strings.ToLower(strings.TrimSpace(st.Key))
		if key == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "stage key cannot be empty")
		}
		if _, dup := seen[key]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "duplicate stage key: "+key)
		}
		seen[key] = struct{}{}
		name := strings.TrimSpace(st.Name)
		if name == "" {
			name = key
		}
		out = append(out, Stage{Key: key, Name: name})
	}
	return out, nil
}

// FirstStage returns the entry stage for new deals.
func (p *Pipeline) FirstStage() string {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[0].Key
}

func (p *Pipeline) HasStage(key string) bool {
	for _, st := range p.Stages {
		if st.Key == key {
			return true
		}
	}
	return false
}

type CreatePipelineRequest struct {
	Name      string  `json:"name"`
	Stages    []Stage `json:"stages"`
	IsDefault bool    `json:"is_default"`
}

type UpdatePipelineRequest struct {
	Name      *string  `json:"name"`
	Stages    *[]Stage `json:"stages"`
	IsDefault bool     `json:"is_default"`
}
