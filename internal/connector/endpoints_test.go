package connector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/domain"
)

func TestResolveEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		source    domain.Source
		overrides []string
		want      []string
		wantErr   bool
	}{
		{
			name:   "empty override uses defaults",
			source: domain.SourceWonde,
			want:   DefaultEndpoints(domain.SourceWonde),
		},
		{
			name:      "override keeps dependency order",
			source:    domain.SourceArbor,
			overrides: []string{"grades", "students", "staff"},
			want:      []string{"staff", "students", "grades"},
		},
		{
			name:      "duplicates dropped",
			source:    domain.SourceWonde,
			overrides: []string{"students", "students", "school"},
			want:      []string{"school", "students"},
		},
		{
			name:      "unknown endpoint",
			source:    domain.SourceArbor,
			overrides: []string{"employees"},
			wantErr:   true,
		},
		{
			name:    "unknown source",
			source:  domain.Source("sims"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoints(tt.source, tt.overrides)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultEndpoints_ReturnsCopy(t *testing.T) {
	list := DefaultEndpoints(domain.SourceArbor)
	list[0] = "mutated"
	assert.Equal(t, "academic_years", DefaultEndpoints(domain.SourceArbor)[0])
}

func TestBuildRecords(t *testing.T) {
	req := StepRequest{
		RunID:        "run-1",
		System:       domain.SystemConfig{Source: domain.SourceWonde, ExternalSchoolID: "W1"},
		Endpoint:     "students",
		AcademicYear: "2025",
	}
	rows := []json.RawMessage{
		json.RawMessage(`{"id":"A1B2","name":"Ada"}`),
		json.RawMessage(`{"id":42}`),
	}

	records, err := BuildRecords(req, rows)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A1B2", records[0].ExternalID)
	assert.Equal(t, "42", records[1].ExternalID)
	assert.Equal(t, "W1", records[0].ExternalSchoolID)
	assert.Equal(t, "run-1", records[1].LastRunID)

	_, err = BuildRecords(req, []json.RawMessage{json.RawMessage(`{"name":"no id"}`)})
	assert.Error(t, err)
}
