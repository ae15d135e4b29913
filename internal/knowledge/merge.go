package knowledge

import "math"

type fieldKind int

const (
	scalarField fieldKind = iota
	triDictField
)

type mergeRule struct {
	field string
	kind  fieldKind
	apply func(dst *Record, update Record)
}

// mergeTable lists every Record field with the rule used to fold an update into it.
var mergeTable = []mergeRule{
	{field: "Categories", kind: triDictField, apply: func(dst *Record, u Record) {
		dst.Categories = mergeDict(dst.Categories, u.Categories)
	}},
	{field: "ExperienceLevels", kind: triDictField, apply: func(dst *Record, u Record) {
		dst.ExperienceLevels = mergeDict(dst.ExperienceLevels, u.ExperienceLevels)
	}},
	{field: "MinHourlyRate", kind: scalarField, apply: func(dst *Record, u Record) {
		dst.MinHourlyRate = mergeNumber(dst.MinHourlyRate, u.MinHourlyRate)
	}},
	{field: "FixedPriceMin", kind: scalarField, apply: func(dst *Record, u Record) {
		dst.FixedPriceMin = mergeNumber(dst.FixedPriceMin, u.FixedPriceMin)
	}},
	{field: "ProjectDurationMin", kind: scalarField, apply: func(dst *Record, u Record) {
		dst.ProjectDurationMin = mergeNumber(dst.ProjectDurationMin, u.ProjectDurationMin)
	}},
	{field: "AverageClientSpentMin", kind: scalarField, apply: func(dst *Record, u Record) {
		dst.AverageClientSpentMin = mergeNumber(dst.AverageClientSpentMin, u.AverageClientSpentMin)
	}},
	{field: "HourlyWorkloadMin", kind: scalarField, apply: func(dst *Record, u Record) {
		dst.HourlyWorkloadMin = mergeNumber(dst.HourlyWorkloadMin, u.HourlyWorkloadMin)
	}},
	{field: "IsCompany", kind: scalarField, apply: func(dst *Record, u Record) {
		if u.IsCompany.Known() {
			dst.IsCompany = u.IsCompany
		}
	}},
}

// Merge folds update into old and returns the result. Known values in update
// win; unknown values never erase what old already knows. Neither input is
// modified.
func Merge(old, update Record) Record {
	out := old.Clone()
	for _, rule := range mergeTable {
		rule.apply(&out, update)
	}
	return out
}

// Touches reports whether merging update would consider any of its fields.
func Touches(update Record) bool {
	return update.Known() > 0
}

// mergeDict overwrites only the keys update knows. dst is owned by the caller.
func mergeDict[K comparable](dst, update map[K]Tri) map[K]Tri {
	touched := false
	for _, v := range update {
		if v.Known() {
			touched = true
			break
		}
	}
	if !touched {
		return dst
	}

	if dst == nil {
		dst = make(map[K]Tri, len(update))
	}
	for k, v := range update {
		if v.Known() {
			dst[k] = v
		}
	}
	return dst
}

func mergeNumber(dst, update *float64) *float64 {
	if update == nil {
		return dst
	}
	v := *update
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return dst
	}
	return &v
}
