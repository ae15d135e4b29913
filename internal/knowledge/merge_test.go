package knowledge

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeTableCoversEveryField(t *testing.T) {
	t.Parallel()

	covered := make(map[string]fieldKind, len(mergeTable))
	for _, rule := range mergeTable {
		if _, dup := covered[rule.field]; dup {
			t.Fatalf("field %s listed twice", rule.field)
		}
		covered[rule.field] = rule.kind
	}

	typ := reflect.TypeOf(Record{})
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		kind, ok := covered[f.Name]
		if !ok {
			t.Fatalf("field %s has no merge rule", f.Name)
		}
		wantDict := f.Type.Kind() == reflect.Map
		if wantDict != (kind == triDictField) {
			t.Fatalf("field %s has kind %d, map=%v", f.Name, kind, wantDict)
		}
	}

	if len(covered) != typ.NumField() {
		t.Fatalf("merge table lists %d fields, record has %d", len(covered), typ.NumField())
	}
}

func TestMergeNeverRevertsKnownFields(t *testing.T) {
	t.Parallel()

	old := Default()
	old.Categories[WebDevelopment] = True
	old.ExperienceLevels[SeniorLevel] = True
	old.MinHourlyRate = Float(50)
	old.FixedPriceMin = Float(1000)
	old.ProjectDurationMin = Float(4)
	old.AverageClientSpentMin = Float(5000)
	old.HourlyWorkloadMin = Float(20)
	old.IsCompany = False

	updates := []Record{
		{},
		Default(),
		{Categories: map[Category]Tri{MobileDevelopment: Unknown}},
		{IsCompany: Unknown, MinHourlyRate: nil},
		{MinHourlyRate: Float(-1)},
	}

	for i, update := range updates {
		got := Merge(old, update)
		if diff := cmp.Diff(old, got); diff != "" {
			t.Fatalf("update %d changed known fields (-old +got):\n%s", i, diff)
		}
	}
}

func TestMergeAllUnknownDictIsNoop(t *testing.T) {
	t.Parallel()

	old := Default()
	old.Categories[WebDevelopment] = True
	old.Categories[MobileDevelopment] = False

	update := Record{
		Categories: map[Category]Tri{WebDevelopment: Unknown, MobileDevelopment: Unknown},
	}

	got := Merge(old, update)
	if got.Categories[WebDevelopment] != True || got.Categories[MobileDevelopment] != False {
		t.Fatalf("unexpected categories: %v", got.Categories)
	}
}

func TestMergeDictOverwritesOnlyKnownKeys(t *testing.T) {
	t.Parallel()

	old := Default()
	old.Categories[WebDevelopment] = True
	old.ExperienceLevels[EntryLevel] = False

	update := Record{
		Categories:       map[Category]Tri{WebDevelopment: Unknown, MobileDevelopment: True},
		ExperienceLevels: map[ExperienceLevel]Tri{EntryLevel: True, SeniorLevel: True},
	}

	got := Merge(old, update)

	want := Default()
	want.Categories[WebDevelopment] = True
	want.Categories[MobileDevelopment] = True
	want.ExperienceLevels[EntryLevel] = True
	want.ExperienceLevels[SeniorLevel] = True

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected merge result (-want +got):\n%s", diff)
	}
}

func TestMergeScalarsLastWriterWins(t *testing.T) {
	t.Parallel()

	old := Default()
	old.MinHourlyRate = Float(40)
	old.IsCompany = True

	got := Merge(old, Record{MinHourlyRate: Float(55), IsCompany: False})
	if got.MinHourlyRate == nil || *got.MinHourlyRate != 55 {
		t.Fatalf("expected rate 55, got %v", got.MinHourlyRate)
	}
	if got.IsCompany != False {
		t.Fatalf("expected isCompany false, got %s", got.IsCompany)
	}

	got = Merge(got, Record{MinHourlyRate: Float(0)})
	if got.MinHourlyRate == nil || *got.MinHourlyRate != 0 {
		t.Fatalf("expected zero to be a known value, got %v", got.MinHourlyRate)
	}
}

func TestMergeIsPure(t *testing.T) {
	t.Parallel()

	old := Default()
	old.MinHourlyRate = Float(10)
	update := Record{
		Categories:    map[Category]Tri{WebDevelopment: True},
		MinHourlyRate: Float(20),
	}

	oldSnapshot := old.Clone()
	updateSnapshot := update.Clone()

	first := Merge(old, update)
	second := Merge(old, update)

	if diff := cmp.Diff(oldSnapshot, old); diff != "" {
		t.Fatalf("merge mutated old:\n%s", diff)
	}
	if diff := cmp.Diff(updateSnapshot, update); diff != "" {
		t.Fatalf("merge mutated update:\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("merge is not deterministic:\n%s", diff)
	}

	*first.MinHourlyRate = 99
	first.Categories[MobileDevelopment] = True
	if *update.MinHourlyRate != 20 || old.Categories[MobileDevelopment] != Unknown {
		t.Fatalf("merge result shares memory with its inputs")
	}
}

func TestMergeIntoNilDicts(t *testing.T) {
	t.Parallel()

	got := Merge(Record{}, Record{ExperienceLevels: map[ExperienceLevel]Tri{MidLevel: True}})
	if got.ExperienceLevels[MidLevel] != True {
		t.Fatalf("expected mid level true, got %v", got.ExperienceLevels)
	}
	if got.Categories != nil {
		t.Fatalf("expected untouched categories to stay nil, got %v", got.Categories)
	}
}

func TestPreferencesComplete(t *testing.T) {
	t.Parallel()

	r := Default()
	if r.PreferencesComplete() {
		t.Fatalf("default record must not be complete")
	}
	if diff := cmp.Diff(Preferences, r.MissingPreferences()); diff != "" {
		t.Fatalf("unexpected missing preferences:\n%s", diff)
	}

	r.ProjectDurationMin = Float(1)
	r.AverageClientSpentMin = Float(0)
	r.HourlyWorkloadMin = Float(10)
	if r.PreferencesComplete() {
		t.Fatalf("record without isCompany must not be complete")
	}
	if got := r.MissingPreferences(); len(got) != 1 || got[0] != IsCompany {
		t.Fatalf("expected only isCompany missing, got %v", got)
	}

	r.IsCompany = False
	if !r.PreferencesComplete() {
		t.Fatalf("expected record to be complete")
	}
}
