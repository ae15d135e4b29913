package knowledge

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// snake_case names used by earlier prompt versions.
var keyAliases = map[string]string{
	"experience_level":     "experienceLevels",
	"experience_levels":    "experienceLevels",
	"min_hourly_rate":      "minHourlyRate",
	"fixed_price_min":      "fixedPriceMin",
	"project_duration":     "projectDurationMin",
	"project_duration_min": "projectDurationMin",
	"average_client_spent": "averageClientSpentMin",
	"hourly_workload":      "hourlyWorkloadMin",
	"hourly_workload_min":  "hourlyWorkloadMin",
	"is_it_a_company":      "isCompany",
	"is_company":           "isCompany",
}

var amountPattern = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

var (
	triType   = reflect.TypeOf(Unknown)
	floatType = reflect.TypeOf(float64(0))
)

// FromMap decodes a loosely typed model answer into a normalized Record.
// Missing or null fields stay unknown.
func FromMap(raw map[string]any) (Record, error) {
	input := make(map[string]any, len(raw))
	for k, v := range raw {
		if alias, ok := keyAliases[strings.ToLower(k)]; ok {
			k = alias
		}
		if s, ok := v.(string); ok && isBlank(s) {
			v = nil
		}
		input[k] = v
	}

	var out struct {
		Categories            map[string]Tri `mapstructure:"categories"`
		ExperienceLevels      map[string]Tri `mapstructure:"experienceLevels"`
		MinHourlyRate         *float64       `mapstructure:"minHourlyRate"`
		FixedPriceMin         *float64       `mapstructure:"fixedPriceMin"`
		ProjectDurationMin    *float64       `mapstructure:"projectDurationMin"`
		AverageClientSpentMin *float64       `mapstructure:"averageClientSpentMin"`
		HourlyWorkloadMin     *float64       `mapstructure:"hourlyWorkloadMin"`
		IsCompany             Tri            `mapstructure:"isCompany"`
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook,
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return Record{}, err
	}
	if err := decoder.Decode(input); err != nil {
		return Record{}, fmt.Errorf("decode knowledge: %w", err)
	}

	r := Record{
		MinHourlyRate:         out.MinHourlyRate,
		FixedPriceMin:         out.FixedPriceMin,
		ProjectDurationMin:    out.ProjectDurationMin,
		AverageClientSpentMin: out.AverageClientSpentMin,
		HourlyWorkloadMin:     out.HourlyWorkloadMin,
		IsCompany:             out.IsCompany,
	}
	if out.Categories != nil {
		r.Categories = make(map[Category]Tri, len(out.Categories))
		for k, v := range out.Categories {
			r.Categories[Category(k)] = v
		}
	}
	if out.ExperienceLevels != nil {
		r.ExperienceLevels = make(map[ExperienceLevel]Tri, len(out.ExperienceLevels))
		for k, v := range out.ExperienceLevels {
			r.ExperienceLevels[ExperienceLevel(k)] = v
		}
	}

	return r.Normalize(), nil
}

func decodeHook(from, to reflect.Type, data any) (any, error) {
	switch to {
	case triType:
		return ParseTri(data)
	case floatType:
		if s, ok := data.(string); ok {
			v, ok := ParseAmount(s)
			if !ok {
				return nil, fmt.Errorf("cannot interpret %q as a number", s)
			}
			return v, nil
		}
	}
	return data, nil
}

func isBlank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "unknown", "n/a":
		return true
	}
	return false
}

// ParseAmount extracts the first number from strings like "$50", "$1,200.00/hr"
// or "$40-$60". For ranges the lower bound is returned.
func ParseAmount(s string) (float64, bool) {
	match := amountPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
