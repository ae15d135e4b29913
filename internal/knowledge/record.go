package knowledge

import (
	"encoding/json"
	"strings"
)

// Category is a kind of work an agency may offer.
type Category string

const (
	WebDevelopment    Category = "Web Development"
	MobileDevelopment Category = "Mobile Development"
)

// Categories lists every category the onboarding tracks.
var Categories = []Category{WebDevelopment, MobileDevelopment}

// ExperienceLevel is the seniority of jobs an agency is willing to take.
type ExperienceLevel string

const (
	EntryLevel  ExperienceLevel = "Entry Level"
	MidLevel    ExperienceLevel = "Mid Level"
	SeniorLevel ExperienceLevel = "Senior Level"
)

// ExperienceLevels lists every level the onboarding tracks.
var ExperienceLevels = []ExperienceLevel{EntryLevel, MidLevel, SeniorLevel}

// Preference names a job feed preference the follow-up questions are about.
type Preference string

const (
	ProjectDuration    Preference = "projectDurationMin"
	AverageClientSpent Preference = "averageClientSpentMin"
	HourlyWorkload     Preference = "hourlyWorkloadMin"
	IsCompany          Preference = "isCompany"
)

// Preferences is the fixed order in which missing preferences are asked about.
var Preferences = []Preference{ProjectDuration, AverageClientSpent, HourlyWorkload, IsCompany}

// Record is what is known about an agency so far. Nil numbers and Unknown
// tri-states mean the fact has not been collected.
type Record struct {
	Categories       map[Category]Tri        `json:"categories"`
	ExperienceLevels map[ExperienceLevel]Tri `json:"experienceLevels"`

	MinHourlyRate *float64 `json:"minHourlyRate"`
	FixedPriceMin *float64 `json:"fixedPriceMin"`

	ProjectDurationMin    *float64 `json:"projectDurationMin"`
	AverageClientSpentMin *float64 `json:"averageClientSpentMin"`
	HourlyWorkloadMin     *float64 `json:"hourlyWorkloadMin"`
	IsCompany             Tri      `json:"isCompany"`
}

// Default returns a record where every enumerated key is present and unknown.
func Default() Record {
	r := Record{
		Categories:       make(map[Category]Tri, len(Categories)),
		ExperienceLevels: make(map[ExperienceLevel]Tri, len(ExperienceLevels)),
	}
	for _, c := range Categories {
		r.Categories[c] = Unknown
	}
	for _, l := range ExperienceLevels {
		r.ExperienceLevels[l] = Unknown
	}
	return r
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.Categories = cloneDict(r.Categories)
	out.ExperienceLevels = cloneDict(r.ExperienceLevels)
	out.MinHourlyRate = cloneNumber(r.MinHourlyRate)
	out.FixedPriceMin = cloneNumber(r.FixedPriceMin)
	out.ProjectDurationMin = cloneNumber(r.ProjectDurationMin)
	out.AverageClientSpentMin = cloneNumber(r.AverageClientSpentMin)
	out.HourlyWorkloadMin = cloneNumber(r.HourlyWorkloadMin)
	return out
}

// PreferencesComplete reports whether every job feed preference is known.
func (r Record) PreferencesComplete() bool {
	return len(r.MissingPreferences()) == 0
}

// MissingPreferences returns the unknown preferences in asking order.
func (r Record) MissingPreferences() []Preference {
	var missing []Preference
	for _, p := range Preferences {
		if !r.hasPreference(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (r Record) hasPreference(p Preference) bool {
	switch p {
	case ProjectDuration:
		return r.ProjectDurationMin != nil
	case AverageClientSpent:
		return r.AverageClientSpentMin != nil
	case HourlyWorkload:
		return r.HourlyWorkloadMin != nil
	case IsCompany:
		return r.IsCompany.Known()
	default:
		return false
	}
}

// Known counts the facts that are no longer unknown.
func (r Record) Known() int {
	n := 0
	for _, v := range r.Categories {
		if v.Known() {
			n++
		}
	}
	for _, v := range r.ExperienceLevels {
		if v.Known() {
			n++
		}
	}
	for _, p := range []*float64{r.MinHourlyRate, r.FixedPriceMin, r.ProjectDurationMin, r.AverageClientSpentMin, r.HourlyWorkloadMin} {
		if p != nil {
			n++
		}
	}
	if r.IsCompany.Known() {
		n++
	}
	return n
}

// Normalize maps loosely spelled keys onto the enumerations and drops the rest.
func (r Record) Normalize() Record {
	out := r.Clone()

	if r.Categories != nil {
		out.Categories = make(map[Category]Tri, len(r.Categories))
		for k, v := range r.Categories {
			if c, ok := ParseCategory(string(k)); ok {
				out.Categories[c] = pick(out.Categories[c], v)
			}
		}
	}

	if r.ExperienceLevels != nil {
		out.ExperienceLevels = make(map[ExperienceLevel]Tri, len(r.ExperienceLevels))
		for k, v := range r.ExperienceLevels {
			if l, ok := ParseExperienceLevel(string(k)); ok {
				out.ExperienceLevels[l] = pick(out.ExperienceLevels[l], v)
			}
		}
	}

	return out
}

// String renders the record as indented JSON for prompts and logs.
func (r Record) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseCategory resolves a category name, ignoring case and separators.
func ParseCategory(s string) (Category, bool) {
	switch squash(s) {
	case "webdevelopment", "web", "webdev":
		return WebDevelopment, true
	case "mobiledevelopment", "mobile", "mobiledev":
		return MobileDevelopment, true
	}
	return "", false
}

// ParseExperienceLevel resolves a level name and the usual synonyms.
func ParseExperienceLevel(s string) (ExperienceLevel, bool) {
	switch squash(s) {
	case "entrylevel", "entry", "junior", "beginner":
		return EntryLevel, true
	case "midlevel", "mid", "intermediate":
		return MidLevel, true
	case "seniorlevel", "senior", "expert":
		return SeniorLevel, true
	}
	return "", false
}

func squash(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// pick keeps an already known value when a duplicate alias is unknown.
func pick(existing, next Tri) Tri {
	if next.Known() {
		return next
	}
	return existing
}

func cloneDict[K comparable](m map[K]Tri) map[K]Tri {
	if m == nil {
		return nil
	}
	out := make(map[K]Tri, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneNumber(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float is a convenience constructor for optional numbers.
func Float(v float64) *float64 {
	return &v
}
