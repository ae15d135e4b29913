package knowledge

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromMap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input map[string]any
		want  Record
	}{
		{
			name:  "empty stays unknown",
			input: map[string]any{},
			want:  Record{},
		},
		{
			name: "camel case with aliases",
			input: map[string]any{
				"categories":       map[string]any{"web development": true, "Mobile": "no"},
				"experienceLevels": map[string]any{"senior": true, "Mid Level": nil},
				"minHourlyRate":    "$50",
				"isCompany":        "yes",
			},
			want: Record{
				Categories:       map[Category]Tri{WebDevelopment: True, MobileDevelopment: False},
				ExperienceLevels: map[ExperienceLevel]Tri{SeniorLevel: True, MidLevel: Unknown},
				MinHourlyRate:    Float(50),
				IsCompany:        True,
			},
		},
		{
			name: "snake case from older prompts",
			input: map[string]any{
				"experience_level":     map[string]any{"junior": true},
				"project_duration":     3.0,
				"average_client_spent": "1,500",
				"hourly_workload":      nil,
				"is_it_a_company":      false,
			},
			want: Record{
				ExperienceLevels:      map[ExperienceLevel]Tri{EntryLevel: True},
				ProjectDurationMin:    Float(3),
				AverageClientSpentMin: Float(1500),
				IsCompany:             False,
			},
		},
		{
			name: "blank strings are unknown",
			input: map[string]any{
				"fixedPriceMin": "",
				"isCompany":     "null",
			},
			want: Record{},
		},
		{
			name: "unknown category keys are dropped",
			input: map[string]any{
				"categories": map[string]any{"Data Science": true},
			},
			want: Record{Categories: map[Category]Tri{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := FromMap(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected record (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromMapRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := FromMap(map[string]any{"minHourlyRate": "plenty"}); err == nil {
		t.Fatalf("expected error for non-numeric rate")
	}
	if _, err := FromMap(map[string]any{"isCompany": "sometimes"}); err == nil {
		t.Fatalf("expected error for non-boolean isCompany")
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{input: "$50", want: 50, ok: true},
		{input: "$50.00/hr", want: 50, ok: true},
		{input: "$40-$60", want: 40, ok: true},
		{input: "$1,200", want: 1200, ok: true},
		{input: "", ok: false},
		{input: "ask me", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseAmount(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRecordJSONLayout(t *testing.T) {
	t.Parallel()

	r := Default()
	r.Categories[WebDevelopment] = True
	r.MinHourlyRate = Float(50)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	categories := raw["categories"].(map[string]any)
	if categories["Web Development"] != true || categories["Mobile Development"] != nil {
		t.Fatalf("unexpected categories: %v", categories)
	}
	if raw["minHourlyRate"] != 50.0 || raw["isCompany"] != nil {
		t.Fatalf("unexpected scalars: %v", raw)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(r, back); diff != "" {
		t.Fatalf("record changed across JSON (-want +got):\n%s", diff)
	}
}
