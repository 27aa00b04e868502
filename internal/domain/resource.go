package domain

import (
	"fmt"
	"strings"
)

// Projection selects how much of the task graph a read assembles.
type Projection string

const (
	ProjectionSummary Projection = "SUMMARY"
	ProjectionDetails Projection = "DETAILS"
	ProjectionDeep    Projection = "DEEP"
)

var projectionRank = map[Projection]int{
	ProjectionSummary: 0,
	ProjectionDetails: 1,
	ProjectionDeep:    2,
}

// ParseProjection is case-insensitive; an empty value means DETAILS.
func ParseProjection(raw string) (Projection, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return ProjectionDetails, nil
	}
	p := Projection(v)
	if _, ok := projectionRank[p]; !ok {
		return "", fmt.Errorf("invalid projection %q: must be one of SUMMARY, DETAILS, DEEP", raw)
	}
	return p, nil
}

// Includes reports whether p carries every field of level.
func (p Projection) Includes(level Projection) bool {
	return projectionRank[p] >= projectionRank[level]
}

// TaskResource is the external representation of a task.
type TaskResource struct {
	GUID        string    `json:"guid,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedOn   string    `json:"created_on,omitempty"`
	ModifiedBy  string    `json:"modified_by,omitempty"`
	ModifiedOn  string    `json:"modified_on,omitempty"`
	Groups      []string  `json:"groups,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	History     []History `json:"history,omitempty"`
}

func ResourceFromTask(t Task) TaskResource {
	return TaskResource{
		GUID:        t.GUID,
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedOn:   t.CreatedOn,
		ModifiedBy:  t.ModifiedBy,
		ModifiedOn:  t.ModifiedOn,
	}
}

// WithLookupValues partitions values by type into groups and tags, keeping row order.
func (r TaskResource) WithLookupValues(values []LookupValue) TaskResource {
	r.Groups = nil
	r.Tags = nil
	for _, lv := range values {
		switch lv.ValueType {
		case LookupValueGroup:
			r.Groups = append(r.Groups, lv.Value)
		case LookupValueTag:
			r.Tags = append(r.Tags, lv.Value)
		}
	}
	return r
}

// Project strips the fields that p does not include.
func (r TaskResource) Project(p Projection) TaskResource {
	out := TaskResource{GUID: r.GUID, Name: r.Name}
	if p.Includes(ProjectionDetails) {
		out.Description = r.Description
		out.CreatedBy = r.CreatedBy
		out.CreatedOn = r.CreatedOn
		out.ModifiedBy = r.ModifiedBy
		out.ModifiedOn = r.ModifiedOn
	}
	if p.Includes(ProjectionDeep) {
		out.Groups = r.Groups
		out.Tags = r.Tags
		out.History = r.History
	}
	return out
}
