package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseProjection(t *testing.T) {
	tests := []struct {
		in      string
		want    Projection
		wantErr bool
	}{
		{in: "", want: ProjectionDetails},
		{in: "summary", want: ProjectionSummary},
		{in: " Deep ", want: ProjectionDeep},
		{in: "DETAILS", want: ProjectionDetails},
		{in: "full", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProjection(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithLookupValuesPartitionsByType(t *testing.T) {
	res := TaskResource{GUID: "g", Name: "n"}.WithLookupValues([]LookupValue{
		{ValueType: LookupValueTag, Value: "A"},
		{ValueType: LookupValueGroup, Value: "1"},
		{ValueType: LookupValueTag, Value: "B"},
	})
	assert.Equal(t, []string{"1"}, res.Groups)
	assert.Equal(t, []string{"A", "B"}, res.Tags)
}

func drawResource(t *rapid.T) TaskResource {
	str := rapid.StringMatching(`[a-zA-Z0-9 ]{0,12}`)
	list := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 0, 5)
	return TaskResource{
		GUID:        rapid.StringMatching(`[0-9a-f]{8}`).Draw(t, "guid"),
		Name:        str.Draw(t, "name"),
		Description: str.Draw(t, "description"),
		CreatedBy:   str.Draw(t, "created_by"),
		CreatedOn:   str.Draw(t, "created_on"),
		ModifiedBy:  str.Draw(t, "modified_by"),
		ModifiedOn:  str.Draw(t, "modified_on"),
		Groups:      list.Draw(t, "groups"),
		Tags:        list.Draw(t, "tags"),
		History:     []History{{EventType: HistoryCreated}},
	}
}

func TestPropertySummaryNeverCarriesDetailOrDeepFields(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawResource(rt)
		out := in.Project(ProjectionSummary)
		if out.GUID != in.GUID || out.Name != in.Name {
			rt.Fatalf("summary lost identity fields: %+v", out)
		}
		if out.Description != "" || out.CreatedBy != "" || out.CreatedOn != "" || out.ModifiedBy != "" || out.ModifiedOn != "" {
			rt.Fatalf("summary carries audit fields: %+v", out)
		}
		if out.Groups != nil || out.Tags != nil || out.History != nil {
			rt.Fatalf("summary carries lookup values or history: %+v", out)
		}
	})
}

func TestPropertyDetailsKeepsAuditButDropsChildren(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawResource(rt)
		out := in.Project(ProjectionDetails)
		if out.CreatedBy != in.CreatedBy || out.ModifiedOn != in.ModifiedOn || out.Description != in.Description {
			rt.Fatalf("details dropped audit fields: %+v", out)
		}
		if out.Groups != nil || out.Tags != nil || out.History != nil {
			rt.Fatalf("details carries children: %+v", out)
		}
	})
}

func TestPropertyDeepIsIdentity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawResource(rt)
		out := in.Project(ProjectionDeep)
		if len(out.Groups) != len(in.Groups) || len(out.Tags) != len(in.Tags) || len(out.History) != len(in.History) {
			rt.Fatalf("deep dropped children: %+v", out)
		}
	})
}
